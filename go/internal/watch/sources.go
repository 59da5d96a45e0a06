package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/wykoj/livewatch/go/clients/judge_client"
	"github.com/wykoj/livewatch/go/internal/reconcile"
)

// ErrUnknownStatus is returned when the judge reports a status this client
// does not understand.
var ErrUnknownStatus = errors.New("unknown status")

type ContestFetcher interface {
	GetContest(ctx context.Context, contestID string) (*judge_client.ContestStatus, error)
}

type SubmissionFetcher interface {
	GetSubmission(ctx context.Context, submissionID string) (*judge_client.SubmissionStatus, error)
}

// ParseContestStatus maps judge contest statuses onto the reconciler's
// before/running/ended lifecycle. The preparation window before a contest
// counts as before.
func ParseContestStatus(s string) (reconcile.Status, error) {
	switch s {
	case judge_client.ContestStatusPrePrep, judge_client.ContestStatusPrep, string(reconcile.StatusBefore):
		return reconcile.StatusBefore, nil
	case judge_client.ContestStatusOngoing, string(reconcile.StatusRunning):
		return reconcile.StatusRunning, nil
	case judge_client.ContestStatusEnded:
		return reconcile.StatusEnded, nil
	default:
		return "", fmt.Errorf("%w: contest status %q", ErrUnknownStatus, s)
	}
}

// ContestSource polls a contest. The countdown target is the reported timestamp.
func ContestSource(client ContestFetcher, contestID string) reconcile.Source {
	return reconcile.SourceFunc(func(ctx context.Context) (reconcile.PollResult, error) {
		c, err := client.GetContest(ctx, contestID)
		if err != nil {
			return reconcile.PollResult{}, err
		}
		status, err := ParseContestStatus(c.Status)
		if err != nil {
			return reconcile.PollResult{}, err
		}
		ts := c.Time()
		return reconcile.PollResult{Status: status, Target: ts, Timestamp: ts}, nil
	})
}

// SubmissionSource polls a submission. Submissions have no countdown.
func SubmissionSource(client SubmissionFetcher, submissionID string) reconcile.Source {
	return reconcile.SourceFunc(func(ctx context.Context) (reconcile.PollResult, error) {
		s, err := client.GetSubmission(ctx, submissionID)
		if err != nil {
			return reconcile.PollResult{}, err
		}
		status := reconcile.StatusResolved
		if s.Pending() {
			status = reconcile.StatusPending
		}
		return reconcile.PollResult{Status: status, Timestamp: s.Time()}, nil
	})
}
