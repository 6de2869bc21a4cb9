//go:build drmaa

package cmd

import (
	"go.uber.org/zap"

	"github.com/3leaps/lsfq/pkg/lsf"
	"github.com/3leaps/lsfq/pkg/lsf/drmaaclient"
)

const hasDirectClient = true

func directClient(logger *zap.Logger) lsf.Client {
	return drmaaclient.New(logger)
}

func directRequiredEnv() []string {
	return drmaaclient.RequiredEnv
}
