package worker

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSweepRequeuesAndPurges(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE transition_queue.*SET status = 'pending'.*dispatching`).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`DELETE FROM transition_queue.*dispatched`).
		WillReturnResult(sqlmock.NewResult(0, 10))

	qs := NewQueueSweeper(db)
	qs.sweep(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSweepSurvivesQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE transition_queue`).WillReturnError(context.DeadlineExceeded)
	mock.ExpectExec(`DELETE FROM transition_queue`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	qs := NewQueueSweeper(db)
	// A failed requeue must not stop the purge.
	qs.sweep(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
