package db

import (
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []error
	}{
		{
			name: "unique violation",
			err:  &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"},
			want: []error{ErrDuplicateName, ErrStorage},
		},
		{
			name: "foreign key violation",
			err:  &pq.Error{Code: "23503", Message: "insert or update violates foreign key constraint"},
			want: []error{ErrUnknownUser, ErrStorage},
		},
		{
			name: "other postgres error",
			err:  &pq.Error{Code: "42P01", Message: "relation does not exist"},
			want: []error{ErrStorage},
		},
		{
			name: "bad connection",
			err:  driver.ErrBadConn,
			want: []error{ErrConnection},
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: []error{ErrStorage},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError("saving group", tt.err)
			for _, want := range tt.want {
				assert.ErrorIs(t, got, want)
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Contains(t, got.Error(), "saving group")
		})
	}

	assert.NoError(t, classifyError("noop", nil))
}

func TestClassifyError_UniqueIsNotForeignKey(t *testing.T) {
	err := classifyError("updating group", &pq.Error{Code: "23505"})
	assert.False(t, errors.Is(err, ErrUnknownUser))
	assert.False(t, errors.Is(err, ErrConnection))
}
