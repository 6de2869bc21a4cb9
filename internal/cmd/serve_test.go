package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/lsfq/pkg/lsf"
)

type lastErrorStub struct{ err error }

func (s lastErrorStub) LastError() error { return s.err }

func TestBatchSystemHealthChecker(t *testing.T) {
	t.Run("healthy after successful refresh", func(t *testing.T) {
		checker := batchSystemHealthChecker{driver: lastErrorStub{}}
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})

	t.Run("reports last refresh error", func(t *testing.T) {
		failure := &lsf.Error{Op: "refresh", Kind: lsf.ErrTransientQuery, Err: errors.New("timeout")}
		checker := batchSystemHealthChecker{driver: lastErrorStub{err: failure}}
		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.True(t, lsf.IsTransientQuery(err))
	})
}

func TestJobsStoreHealthChecker(t *testing.T) {
	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{name: "creates missing directory", dir: filepath.Join(t.TempDir(), "a", "b"), wantErr: false},
		{name: "empty directory", dir: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := jobsStoreHealthChecker{dir: tt.dir}.CheckHealth(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
