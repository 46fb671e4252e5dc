package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignFieldsIgnoresOrderAndChecksum(t *testing.T) {
	a := map[string]string{"ORDERID": "MKT_1", "STATUS": "TXN_SUCCESS", "TXNID": "T1"}
	b := map[string]string{"TXNID": "T1", "STATUS": "TXN_SUCCESS", "ORDERID": "MKT_1", ChecksumField: "stale"}

	assert.Equal(t, SignFields(a, "key"), SignFields(b, "key"))
	assert.NotEqual(t, SignFields(a, "key"), SignFields(a, "other-key"))
}

func TestVerifyFields(t *testing.T) {
	fields := map[string]string{"ORDERID": "MKT_1", "STATUS": "TXN_SUCCESS", "TXNAMOUNT": "499"}
	fields[ChecksumField] = SignFields(fields, "key")

	assert.True(t, VerifyFields(fields, "key"))
	assert.False(t, VerifyFields(fields, "wrong"))
	assert.False(t, VerifyFields(fields, ""))

	fields["TXNAMOUNT"] = "1"
	assert.False(t, VerifyFields(fields, "key"))

	delete(fields, ChecksumField)
	assert.False(t, VerifyFields(fields, "key"))
}
