// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command campaignctl is the single-run and multi-run CLI front end for
// the campaign orchestration engine: init/step/loop drive the step loop,
// status/explain/monitor read it back, and rerun/cancel-attempt/
// cleanup-orphans/export-evidence cover the operator's day-to-day repair
// toolkit.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "campaignctl",
		Short:         "Drive and inspect campaign orchestration runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newInitCmd(),
		newStepCmd(),
		newLoopCmd(),
		newStatusCmd(),
		newExplainCmd(),
		newMonitorCmd(),
		newCancelCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newReviveCmd(),
		newRerunCmd(),
		newAttemptsCmd(),
		newCancelAttemptCmd(),
		newCleanupOrphansCmd(),
		newExportEvidenceCmd(),
		newSelfTestCmd(),
	)

	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "campaignctl:", describeErr(err))
		os.Exit(1)
	}
}

// describeErr renders the error taxonomy's distinguishing fields instead of
// just the generic message, so an operator can tell a lock_busy from a
// wiring_override_refused at a glance.
func describeErr(err error) string {
	var lockBusy *campaignerrors.LockBusyError
	var notFound *campaignerrors.NotFoundError
	var configInvalid *campaignerrors.ConfigInvalidError
	var overrideRefused *campaignerrors.WiringOverrideRefusedError
	var dispatchFailed *campaignerrors.DispatchFailedError
	var pollFailed *campaignerrors.PollFailedError
	var stuckAttempt *campaignerrors.StuckAttemptError
	var campaignErr *campaignerrors.CampaignError
	var invariant *campaignerrors.InvariantViolationError

	switch {
	case campaignerrors.As(err, &lockBusy):
		return "lock_busy: " + lockBusy.Error()
	case campaignerrors.As(err, &notFound):
		return "not_found: " + notFound.Error()
	case campaignerrors.As(err, &configInvalid):
		return "config_invalid: " + configInvalid.Error()
	case campaignerrors.As(err, &overrideRefused):
		return "wiring_override_refused: " + overrideRefused.Error()
	case campaignerrors.As(err, &dispatchFailed):
		return "dispatch_failed: " + dispatchFailed.Error()
	case campaignerrors.As(err, &pollFailed):
		return "poll_failed: " + pollFailed.Error()
	case campaignerrors.As(err, &stuckAttempt):
		return "stuck_attempt: " + stuckAttempt.Error()
	case campaignerrors.As(err, &campaignErr):
		return "campaign_exception: " + campaignErr.Error()
	case campaignerrors.As(err, &invariant):
		return "invariant_violation: " + invariant.Error()
	default:
		return err.Error()
	}
}
