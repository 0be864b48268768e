package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositPolicyDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewDepositPolicyHolder(Config{})
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, DefaultDepositPolicy().SequenceMaxAttempts, policy.SequenceMaxAttempts)
	assert.Equal(t, 30*time.Second, policy.LockTTL)
	assert.False(t, policy.LedgerDisabled("cautions"))
}

func TestDepositPolicyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deposit.yml")
	content := []byte(`deposit:
  sequenceMaxAttempts: 8
  lockTTL: 5s
  lockWait: 2s
  reconcileEnabled: false
  reconcileBatchSize: 50
  disabledLedgers:
    - Restitutions
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewDepositPolicyHolder(Config{DepositPolicyPath: path})
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, 8, policy.SequenceMaxAttempts)
	assert.Equal(t, 5*time.Second, policy.LockTTL)
	assert.Equal(t, 2*time.Second, policy.LockWait)
	assert.False(t, policy.ReconcileEnabled)
	assert.Equal(t, 50, policy.ReconcileBatchSize)
	assert.True(t, policy.LedgerDisabled("restitutions"))
	assert.False(t, policy.LedgerDisabled("cautions"))
}

func TestDepositPolicyRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deposit.yml")
	require.NoError(t, os.WriteFile(path, []byte("deposit:\n  sequenceMaxAttempts: 0\n"), 0o600))

	_, err := NewDepositPolicyHolder(Config{DepositPolicyPath: path})
	assert.Error(t, err)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *DepositPolicyHolder
	assert.Equal(t, DefaultDepositPolicy(), holder.Get())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Config{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, time.UTC, Config{}.Location())
}
