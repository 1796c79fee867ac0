// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/latisnere/suplementia/internal/apierrors"
	"github.com/latisnere/suplementia/internal/cache"
	"github.com/latisnere/suplementia/internal/vectorstore"
)

func defaultThresholds() EvidenceThresholds {
	return EvidenceThresholds{Strong: 21, Moderate: 5, Low: 1}
}

type stubPubMed struct {
	count int
	err   error
}

func (s stubPubMed) StudyCount(ctx context.Context, term string) (int, error) {
	return s.count, s.err
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.vec != nil {
		return s.vec, nil
	}
	return unitVectorForTest(len(text)), nil
}

func unitVectorForTest(seed int) []float32 {
	vec := make([]float32, 384)
	vec[seed%384] = 1
	return vec
}

func testTiered(t *testing.T) *cache.Tiered {
	t.Helper()
	l1, err := cache.NewL1Cache()
	if err != nil {
		t.Fatalf("NewL1Cache() error = %v", err)
	}
	t.Cleanup(l1.Close)
	return cache.NewTiered(nil, l1)
}

func TestProcessJob_EvidenceGradingFixture(t *testing.T) {
	cases := []struct {
		studyCount  int
		wantGrade   string
		wantInserted bool
	}{
		{0, "", false},
		{3, "E", true},
		{10, "C", true},
		{30, "A", true},
	}

	for _, tc := range cases {
		q := openTestQueue(t, 30*24*time.Hour)
		store := vectorstore.NewMemoryVectorStore()
		worker := NewWorker(q, stubPubMed{count: tc.studyCount}, stubEmbedder{}, store, testTiered(t), defaultThresholds(), 3, time.Second)

		query := "Test Compound"
		if _, _, err := q.Enqueue(context.Background(), query); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
		worker.ProcessJob(context.Background(), query)

		job, err := q.Get(context.Background(), query)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		if tc.wantInserted {
			if job.State != StateSucceeded {
				t.Errorf("studyCount=%d: job state = %v, want SUCCEEDED", tc.studyCount, job.State)
			}
			got, err := store.GetByCanonicalName(query)
			if err != nil {
				t.Fatalf("GetByCanonicalName() error = %v", err)
			}
			if got == nil {
				t.Fatalf("studyCount=%d: expected a supplement to be inserted", tc.studyCount)
			}
			if got.Metadata.EvidenceGrade != tc.wantGrade {
				t.Errorf("studyCount=%d: grade = %q, want %q", tc.studyCount, got.Metadata.EvidenceGrade, tc.wantGrade)
			}
		} else {
			if job.State != StateRejectedNoEvidence {
				t.Errorf("studyCount=%d: job state = %v, want REJECTED_NO_EVIDENCE", tc.studyCount, job.State)
			}
			n, _ := store.Count()
			if n != 0 {
				t.Errorf("studyCount=%d: store has %d entries, want 0", tc.studyCount, n)
			}
		}
	}
}

func TestProcessJob_PubMedTransientRequeues(t *testing.T) {
	q := openTestQueue(t, 30*24*time.Hour)
	store := vectorstore.NewMemoryVectorStore()
	transientErr := apierrors.New("pubmed.StudyCount", apierrors.KindPubMedTransient, context.DeadlineExceeded)
	worker := NewWorker(q, stubPubMed{err: transientErr}, stubEmbedder{}, store, testTiered(t), defaultThresholds(), 3, time.Millisecond)

	query := "Flaky Compound"
	if _, _, err := q.Enqueue(context.Background(), query); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	worker.ProcessJob(context.Background(), query)

	job, err := q.Get(context.Background(), query)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StatePending {
		t.Errorf("State = %v, want PENDING after transient failure (requeued)", job.State)
	}
	if job.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", job.Attempts)
	}
}

func TestProcessJob_PubMedPermanentFailsImmediately(t *testing.T) {
	q := openTestQueue(t, 30*24*time.Hour)
	store := vectorstore.NewMemoryVectorStore()
	permanentErr := apierrors.New("pubmed.StudyCount", apierrors.KindPubMedPermanent, context.Canceled)
	worker := NewWorker(q, stubPubMed{err: permanentErr}, stubEmbedder{}, store, testTiered(t), defaultThresholds(), 3, time.Millisecond)

	query := "Malformed Compound"
	if _, _, err := q.Enqueue(context.Background(), query); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	worker.ProcessJob(context.Background(), query)

	job, err := q.Get(context.Background(), query)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StateFailed {
		t.Errorf("State = %v, want FAILED for a permanent PubMed error", job.State)
	}
}

func TestProcessJob_ExhaustedRetriesFails(t *testing.T) {
	q := openTestQueue(t, 30*24*time.Hour)
	store := vectorstore.NewMemoryVectorStore()
	transientErr := apierrors.New("pubmed.StudyCount", apierrors.KindPubMedTransient, context.DeadlineExceeded)
	worker := NewWorker(q, stubPubMed{err: transientErr}, stubEmbedder{}, store, testTiered(t), defaultThresholds(), 1, time.Millisecond)

	query := "Persistently Flaky Compound"
	if _, _, err := q.Enqueue(context.Background(), query); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	worker.ProcessJob(context.Background(), query)

	job, err := q.Get(context.Background(), query)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StateFailed {
		t.Errorf("State = %v, want FAILED once maxAttempts=1 is exhausted on the first failure", job.State)
	}
}

func TestProcessJob_DuplicateInsertTreatedAsSuccess(t *testing.T) {
	q := openTestQueue(t, 30*24*time.Hour)
	store := vectorstore.NewMemoryVectorStore()
	query := "Already There"

	if _, err := store.Insert(vectorstore.Supplement{
		CanonicalName: query,
		Embedding:     unitVectorForTest(1),
	}); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}

	worker := NewWorker(q, stubPubMed{count: 10}, stubEmbedder{vec: unitVectorForTest(2)}, store, testTiered(t), defaultThresholds(), 3, time.Millisecond)

	if _, _, err := q.Enqueue(context.Background(), query); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	worker.ProcessJob(context.Background(), query)

	job, err := q.Get(context.Background(), query)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job.State != StateSucceeded {
		t.Errorf("State = %v, want SUCCEEDED when insert races into DUPLICATE", job.State)
	}
}

func TestEvidenceThresholds_Grade(t *testing.T) {
	thresholds := defaultThresholds()
	cases := map[int]string{0: "", 1: "E", 4: "E", 5: "C", 20: "C", 21: "A", 22: "A"}
	for count, want := range cases {
		if got := thresholds.Grade(count); got != want {
			t.Errorf("Grade(%d) = %q, want %q", count, got, want)
		}
	}
}
