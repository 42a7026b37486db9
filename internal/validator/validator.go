// Package validator collects device metrics snapshots, canonicalizes
// them for stable comparison, and compares pre/post-upgrade snapshots
// against configured margins (SPEC_FULL.md §5.5).
package validator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/internal/store/atomic"
	"github.com/natej/panos-upgrade/internal/upgradeerr"
)

// Margins configures how much drift between pre- and post-upgrade
// metrics is tolerated before validation_passed is false.
type Margins struct {
	TCPSessionPercent float64
	RouteCount        int
	ARPCount          int
}

// Validator collects and compares device metrics, persisting pre/post
// flight artifacts under the configured validation directory.
type Validator struct {
	dir     string
	margins Margins
}

// New constructs a Validator writing artifacts under dir (the
// validation/ directory) using the given margins.
func New(dir string, margins Margins) *Validator {
	return &Validator{dir: dir, margins: margins}
}

// Collect calls metrics(), canonicalizes routes and ARP entries by
// stable sort, persists the result as a pre-flight artifact, and returns it.
func (v *Validator) Collect(ctx context.Context, client deviceapi.Client, serial string) (model.PreFlightArtifact, error) {
	metrics, err := client.Metrics(ctx)
	if err != nil {
		return model.PreFlightArtifact{}, fmt.Errorf("collecting metrics for %s: %w", serial, err)
	}
	canonicalize(&metrics)

	artifact := model.PreFlightArtifact{
		Serial:    serial,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Metrics:   metrics,
	}

	path := fmt.Sprintf("%s/pre_flight/%s_%s.json", v.dir, serial, isoStamp())
	if err := atomic.WriteJSON(path, artifact); err != nil {
		return model.PreFlightArtifact{}, fmt.Errorf("persisting pre-flight artifact: %w", err)
	}
	return artifact, nil
}

// CollectPostFlight re-collects metrics after upgrade, compares against
// pre, persists the combined report, and returns it. A comparison that
// fails margins is not an error: the caller proceeds to complete
// regardless (SPEC_FULL.md §5.5).
func (v *Validator) CollectPostFlight(ctx context.Context, client deviceapi.Client, pre model.PreFlightArtifact) (model.PostFlightArtifact, error) {
	post, err := client.Metrics(ctx)
	if err != nil {
		return model.PostFlightArtifact{}, fmt.Errorf("collecting post-flight metrics for %s: %w", pre.Serial, err)
	}
	canonicalize(&post)

	artifact := model.PostFlightArtifact{
		Serial:     pre.Serial,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		PreFlight:  pre,
		PostFlight: post,
		Comparison: v.Compare(pre.Metrics, post),
	}

	path := fmt.Sprintf("%s/post_flight/%s_%s.json", v.dir, pre.Serial, isoStamp())
	if err := atomic.WriteJSON(path, artifact); err != nil {
		return model.PostFlightArtifact{}, fmt.Errorf("persisting post-flight artifact: %w", err)
	}
	return artifact, nil
}

// Compare reports the relative change between two metrics snapshots
// against the Validator's configured margins.
func (v *Validator) Compare(pre, post model.Metrics) model.Comparison {
	tcp := compareTCPSessions(pre.TCPSessions, post.TCPSessions, v.margins.TCPSessionPercent)
	routes := compareRoutes(pre.Routes, post.Routes, v.margins.RouteCount)
	arp := compareARP(pre.ARPEntries, post.ARPEntries, v.margins.ARPCount)

	return model.Comparison{
		TCPSessions:      tcp,
		Routes:           routes,
		ARPEntries:       arp,
		ValidationPassed: tcp.WithinMargin && routes.ValidationPassed && arp.ValidationPassed,
	}
}

// DiskPrecheck returns an *upgradeerr.Error of KindInsufficientDisk if
// free space is strictly below minGB. Invoked before each download, not once per job.
func (v *Validator) DiskPrecheck(ctx context.Context, client deviceapi.Client, minGB float64) error {
	free, err := client.DiskAvailable(ctx)
	if err != nil {
		return fmt.Errorf("checking disk space: %w", err)
	}
	if free < minGB {
		return upgradeerr.Newf(upgradeerr.KindInsufficientDisk, "download", "insufficient disk: %.1fGB free, %.1fGB required", free, minGB)
	}
	return nil
}

func compareTCPSessions(pre, post int, marginPercent float64) model.TCPSessionComparison {
	denom := pre
	if denom < 1 {
		denom = 1
	}
	pct := float64(post-pre) / float64(denom) * 100
	abs := pct
	if abs < 0 {
		abs = -abs
	}
	return model.TCPSessionComparison{
		Difference:   post - pre,
		Percentage:   pct,
		WithinMargin: abs <= marginPercent,
	}
}

func compareRoutes(pre, post []model.Route, margin int) model.RouteComparison {
	preSet := make(map[model.Route]bool, len(pre))
	for _, r := range pre {
		preSet[r] = true
	}
	postSet := make(map[model.Route]bool, len(post))
	for _, r := range post {
		postSet[r] = true
	}

	var added, removed []model.Route
	for r := range postSet {
		if !preSet[r] {
			added = append(added, r)
		}
	}
	for r := range preSet {
		if !postSet[r] {
			removed = append(removed, r)
		}
	}
	sortRoutes(added)
	sortRoutes(removed)

	return model.RouteComparison{
		CountDifference:  len(post) - len(pre),
		Added:            added,
		Removed:          removed,
		ValidationPassed: len(added) <= margin && len(removed) <= margin,
	}
}

func compareARP(pre, post []model.ARPEntry, margin int) model.ARPComparison {
	preSet := make(map[model.ARPEntry]bool, len(pre))
	for _, e := range pre {
		preSet[e] = true
	}
	postSet := make(map[model.ARPEntry]bool, len(post))
	for _, e := range post {
		postSet[e] = true
	}

	var added, removed []model.ARPEntry
	for e := range postSet {
		if !preSet[e] {
			added = append(added, e)
		}
	}
	for e := range preSet {
		if !postSet[e] {
			removed = append(removed, e)
		}
	}
	sortARP(added)
	sortARP(removed)

	return model.ARPComparison{
		CountDifference:  len(post) - len(pre),
		Added:            added,
		Removed:          removed,
		ValidationPassed: len(added) <= margin && len(removed) <= margin,
	}
}

// canonicalize stable-sorts routes by (destination, gateway, interface)
// and ARP entries by (ip, mac), and fills in the redundant count fields.
func canonicalize(m *model.Metrics) {
	sortRoutes(m.Routes)
	sortARP(m.ARPEntries)
	m.RouteCount = len(m.Routes)
	m.ARPCount = len(m.ARPEntries)
}

func sortRoutes(routes []model.Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		a, b := routes[i], routes[j]
		if a.Destination != b.Destination {
			return a.Destination < b.Destination
		}
		if a.Gateway != b.Gateway {
			return a.Gateway < b.Gateway
		}
		return a.Interface < b.Interface
	})
}

func sortARP(entries []model.ARPEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IP != b.IP {
			return a.IP < b.IP
		}
		return a.MAC < b.MAC
	})
}

func isoStamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}
