package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DepositPolicy carries the tunables of the deposit ledger that may change at runtime.
type DepositPolicy struct {
	SequenceMaxAttempts int
	LockTTL             time.Duration
	LockWait            time.Duration
	ReconcileEnabled    bool
	ReconcileInterval   time.Duration
	ReconcileBatchSize  int
	DisabledLedgers     []string
}

func DefaultDepositPolicy() DepositPolicy {
	return DepositPolicy{
		SequenceMaxAttempts: 5,
		LockTTL:             30 * time.Second,
		LockWait:            10 * time.Second,
		ReconcileEnabled:    true,
		ReconcileInterval:   15 * time.Minute,
		ReconcileBatchSize:  500,
	}
}

// LedgerDisabled reports whether the named ledger is excluded from balance computation.
func (p DepositPolicy) LedgerDisabled(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, disabled := range p.DisabledLedgers {
		if strings.ToLower(strings.TrimSpace(disabled)) == name {
			return true
		}
	}
	return false
}

type DepositPolicyHolder struct {
	current atomic.Value // holds DepositPolicy
}

// NewStaticDepositPolicyHolder wraps a fixed policy; used by tests and tooling.
func NewStaticDepositPolicyHolder(policy DepositPolicy) *DepositPolicyHolder {
	holder := &DepositPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewDepositPolicyHolder(cfg Config) (*DepositPolicyHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.DepositPolicyPath); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("deposit")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/consigna")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CONSIGNA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDepositPolicy()
	v.SetDefault("deposit.sequenceMaxAttempts", defaults.SequenceMaxAttempts)
	v.SetDefault("deposit.lockTTL", defaults.LockTTL)
	v.SetDefault("deposit.lockWait", defaults.LockWait)
	v.SetDefault("deposit.reconcileEnabled", defaults.ReconcileEnabled)
	v.SetDefault("deposit.reconcileInterval", defaults.ReconcileInterval)
	v.SetDefault("deposit.reconcileBatchSize", defaults.ReconcileBatchSize)
	v.SetDefault("deposit.disabledLedgers", []string{})

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := decodeDepositPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticDepositPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeDepositPolicy(v)
		if err != nil {
			log.Printf("[deposit-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[deposit-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *DepositPolicyHolder) Get() DepositPolicy {
	if h == nil {
		return DefaultDepositPolicy()
	}
	policy, ok := h.current.Load().(DepositPolicy)
	if !ok {
		return DefaultDepositPolicy()
	}
	return policy
}

func decodeDepositPolicy(v *viper.Viper) (DepositPolicy, error) {
	policy := DepositPolicy{
		SequenceMaxAttempts: v.GetInt("deposit.sequenceMaxAttempts"),
		LockTTL:             v.GetDuration("deposit.lockTTL"),
		LockWait:            v.GetDuration("deposit.lockWait"),
		ReconcileEnabled:    v.GetBool("deposit.reconcileEnabled"),
		ReconcileInterval:   v.GetDuration("deposit.reconcileInterval"),
		ReconcileBatchSize:  v.GetInt("deposit.reconcileBatchSize"),
		DisabledLedgers:     v.GetStringSlice("deposit.disabledLedgers"),
	}
	if err := validateDepositPolicy(policy); err != nil {
		return DepositPolicy{}, err
	}
	return policy, nil
}

func validateDepositPolicy(p DepositPolicy) error {
	if p.SequenceMaxAttempts <= 0 {
		return errors.New("deposit.sequenceMaxAttempts must be positive")
	}
	if p.LockTTL <= 0 {
		return errors.New("deposit.lockTTL must be positive")
	}
	if p.LockWait <= 0 {
		return errors.New("deposit.lockWait must be positive")
	}
	if p.ReconcileEnabled && p.ReconcileInterval <= 0 {
		return errors.New("deposit.reconcileInterval must be positive")
	}
	if p.ReconcileBatchSize <= 0 {
		return errors.New("deposit.reconcileBatchSize must be positive")
	}
	return nil
}
