//go:build integration

package main_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"statesync/internal/app/apps"
	"statesync/internal/app/cfg"

	"github.com/stretchr/testify/assert"
)

func TestClientServerApps(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s, err := apps.NewServerApp(cfg.PortFromEnv(), cfg.HTTPPortFromEnv())
		if assert.NoError(t, err) {
			assert.NoError(t, s.Run(ctx, nil))
		}
	}()
	go func() {
		defer wg.Done()
		time.Sleep(200 * time.Millisecond)
		c, err := apps.NewClientApp(cfg.PortFromEnv(), cfg.SessionFromEnv())
		if assert.NoError(t, err) {
			assert.NoError(t, c.Run(ctx, []string{"round=1"}))
		}
	}()
	wg.Wait()
}
