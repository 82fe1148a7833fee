package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/victornm/quizgrade/internal/domain"
)

type participantKey struct {
	session string
	user    string
}

// SubmissionStore is an in-memory implementation of
// domain.SubmissionRepository. Transactions are serialized by a single lock;
// the participant index plays the role of the unique constraint.
type SubmissionStore struct {
	txMu sync.Mutex

	mu            sync.RWMutex
	byToken       map[string]domain.Submission
	byParticipant map[participantKey]string
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		byToken:       make(map[string]domain.Submission),
		byParticipant: make(map[participantKey]string),
	}
}

func (s *SubmissionStore) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.SubmissionTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &submissionTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	return s.commit(tx.pending)
}

func (s *SubmissionStore) commit(pending []domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range pending {
		k := participantKey{session: sub.SessionName, user: sub.UserCode}
		if _, ok := s.byParticipant[k]; ok {
			return domain.DuplicateSubmission(sub.SessionName, sub.UserCode, nil)
		}
	}
	for _, sub := range pending {
		s.byToken[sub.ID] = sub
		s.byParticipant[participantKey{session: sub.SessionName, user: sub.UserCode}] = sub.ID
	}
	return nil
}

func (s *SubmissionStore) GetByToken(_ context.Context, token string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byToken[token]
	if !ok {
		return domain.Submission{}, domain.ResultNotFound(token)
	}
	return sub, nil
}

func (s *SubmissionStore) ListBySession(_ context.Context, sessionName string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Submission
	for _, sub := range s.byToken {
		if sub.SessionName == sessionName {
			out = append(out, sub)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count returns the number of stored submissions.
func (s *SubmissionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byToken)
}

type submissionTx struct {
	store   *SubmissionStore
	pending []domain.Submission
}

func (tx *submissionTx) FindByParticipant(_ context.Context, sessionName, userCode string) (domain.Submission, bool, error) {
	for _, sub := range tx.pending {
		if sub.SessionName == sessionName && sub.UserCode == userCode {
			return sub, true, nil
		}
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	id, ok := tx.store.byParticipant[participantKey{session: sessionName, user: userCode}]
	if !ok {
		return domain.Submission{}, false, nil
	}
	return tx.store.byToken[id], true, nil
}

func (tx *submissionTx) Insert(_ context.Context, sub domain.Submission) error {
	for _, p := range tx.pending {
		if p.SessionName == sub.SessionName && p.UserCode == sub.UserCode {
			return domain.DuplicateSubmission(sub.SessionName, sub.UserCode, nil)
		}
	}
	tx.pending = append(tx.pending, sub)
	return nil
}
