package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inventaire-ai/internal/util"

	"go.uber.org/zap"
)

// Info describes a published release.
type Info struct {
	Version string `json:"version"`
	URL     string `json:"url"`
	Notes   string `json:"notes"`
}

// Checker fetches a version manifest and compares it to the running build.
type Checker struct {
	current    string
	manifest   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewChecker(currentVersion, manifestURL string) *Checker {
	return &Checker{
		current:    currentVersion,
		manifest:   manifestURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     util.GetLogger(),
	}
}

// Check returns the release info when a newer version is published, nil
// otherwise.
func (c *Checker) Check(ctx context.Context) (*Info, error) {
	if c.manifest == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.manifest, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build update request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update check returned %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode update manifest: %w", err)
	}

	if CompareVersions(info.Version, c.current) > 0 {
		return &info, nil
	}
	return nil, nil
}

// CheckAsync runs the check in the background and invokes the callback only
// when an update exists. Failures are logged and swallowed; an unreachable
// manifest must never disturb a scan.
func (c *Checker) CheckAsync(ctx context.Context, onUpdate func(*Info)) {
	go func() {
		info, err := c.Check(ctx)
		if err != nil {
			c.logger.Debug("Update check failed", zap.Error(err))
			return
		}
		if info != nil {
			onUpdate(info)
		}
	}()
}

// CompareVersions orders two dotted version strings numerically, segment by
// segment. A "v" prefix and missing segments are tolerated; non-numeric
// segments compare as zero.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(strings.TrimSpace(a), "v"), ".")
	bs := strings.Split(strings.TrimPrefix(strings.TrimSpace(b), "v"), ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av > bv {
				return 1
			}
			return -1
		}
	}
	return 0
}
