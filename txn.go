// Copyright 2021 tigerkv Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License")
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tigerkv

// TxnState is a transaction's lifecycle state.
type TxnState int

// A transaction starts Active and finalizes exactly once into one of the
// three terminal states.
const (
	TxnActive TxnState = iota
	TxnCommitted
	TxnRolledBack
	// TxnAbandoned means the owning session went away with the transaction
	// still running; the engine rolled it back.
	TxnAbandoned
)

func (st TxnState) String() string {
	switch st {
	case TxnActive:
		return "active"
	case TxnCommitted:
		return "committed"
	case TxnRolledBack:
		return "rolled-back"
	case TxnAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// Transaction groups a session's writes into one atomic unit. It belongs to
// the session that began it and follows the session's single-goroutine rule.
type Transaction struct {
	sess  *Session
	state TxnState
}

// State returns the transaction's lifecycle state.
func (t *Transaction) State() TxnState {
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	return t.state
}

// Commit publishes the transaction's writes. When the commit loses a
// conflict the error satisfies IsRollback and the transaction stays Active;
// the caller must Rollback and retry from the start.
func (t *Transaction) Commit(cfg *CommitConfig) error {
	confStr, err := cfg.build()
	if err != nil {
		return err
	}
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	if t.state != TxnActive {
		return ErrTxnFinished
	}
	if err := t.sess.rs.CommitTransaction(confStr); err != nil {
		return err
	}
	t.state = TxnCommitted
	return nil
}

// Rollback discards the transaction's writes.
func (t *Transaction) Rollback() error {
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	if t.state != TxnActive {
		return ErrTxnFinished
	}
	if err := t.sess.rs.RollbackTransaction(""); err != nil {
		return err
	}
	t.state = TxnRolledBack
	return nil
}

// Prepare marks the transaction ready to commit. Data operations are refused
// afterwards; only Commit or Rollback may follow.
func (t *Transaction) Prepare() error {
	t.sess.mu.Lock()
	defer t.sess.mu.Unlock()
	if t.state != TxnActive {
		return ErrTxnFinished
	}
	return t.sess.rs.PrepareTransaction("")
}
