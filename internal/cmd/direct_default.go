//go:build !drmaa

package cmd

import (
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/pkg/lsf"
)

const hasDirectClient = false

// directClient returns nil: this build has no batch API client, so only the
// shell strategy is available.
func directClient(_ *zap.Logger) lsf.Client {
	return nil
}

func directRequiredEnv() []string {
	return nil
}
