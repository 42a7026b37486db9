// Package ha implements the HA Coordinator: sequencing an HA pair
// through the passive member first, then re-querying roles before
// upgrading whichever member is now active (SPEC_FULL.md §5.7).
package ha

import (
	"context"
	"fmt"

	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/upgradeerr"
)

// Workflow drives one device to completion; Coordinator is generic over
// it so it can sequence either a full upgrade or a download-only run.
type Workflow func(ctx context.Context, client deviceapi.Client, serial, hostname, jobID string) *model.DeviceStatus

// Coordinator sequences an HA pair.
type Coordinator struct {
	dial deviceapi.Dialer
	run  Workflow
}

// New constructs a Coordinator that dials devices via dial and drives
// each one with run.
func New(dial deviceapi.Dialer, run Workflow) *Coordinator {
	return &Coordinator{dial: dial, run: run}
}

// Run sequences devices a and b: queries live HA state for both, fails
// fast if roles are ambiguous, upgrades the passive member, re-queries
// both members' HA state (a failover may have occurred), then upgrades
// whichever is now active.
func (c *Coordinator) Run(ctx context.Context, a, b model.Device, jobID string) (passiveStatus, activeStatus *model.DeviceStatus, err error) {
	passive, active, err := c.resolveRoles(ctx, a, b)
	if err != nil {
		return nil, nil, err
	}

	passiveClient := c.dial.Dial(passive)
	passiveStatus = c.run(ctx, passiveClient, passive.Serial, passive.Hostname, jobID)

	// Roles are re-read, not remembered: failover may have occurred
	// while the passive member was upgrading.
	passive2, active2, err := c.resolveRoles(ctx, passive, active)
	if err != nil {
		return passiveStatus, nil, fmt.Errorf("re-querying HA roles after passive upgrade: %w", err)
	}
	_ = passive2

	activeClient := c.dial.Dial(active2)
	activeStatus = c.run(ctx, activeClient, active2.Serial, active2.Hostname, jobID)

	return passiveStatus, activeStatus, nil
}

// resolveRoles queries live ha_state() for both devices and classifies
// them passive/active. Ambiguous configurations (both the same state, or
// either unknown) fail the job rather than guessing, per SPEC_FULL.md §5.7.
func (c *Coordinator) resolveRoles(ctx context.Context, a, b model.Device) (passive, active model.Device, err error) {
	aState, err := c.dial.Dial(a).HAState(ctx)
	if err != nil {
		return model.Device{}, model.Device{}, fmt.Errorf("querying HA state of %s: %w", a.Serial, err)
	}
	bState, err := c.dial.Dial(b).HAState(ctx)
	if err != nil {
		return model.Device{}, model.Device{}, fmt.Errorf("querying HA state of %s: %w", b.Serial, err)
	}

	if aState == model.HAStateUnknown || bState == model.HAStateUnknown || aState == bState {
		return model.Device{}, model.Device{}, upgradeerr.Newf(upgradeerr.KindHAAmbiguous, "ha_resolve",
			"ambiguous HA roles for pair %s/%s: %s=%s %s=%s", a.Serial, b.Serial, a.Serial, aState, b.Serial, bState)
	}

	if aState == model.HAStatePassive {
		return a, b, nil
	}
	return b, a, nil
}
