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

// Package human implements the Human gate operator variant: a task that
// waits on a person to act. submit() renders instructions.md and a signed,
// time-limited link a reviewer follows to record a decision; poll() checks
// for that decision's response file.
package human

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/operator"
)

// Decision is the content of response.json once a reviewer has acted.
type Decision struct {
	Approved bool                   `json:"approved"`
	Comment  string                 `json:"comment,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Operator implements the Human gate variant. Signing key is process-wide
// (not persisted); link tokens only need to survive until the reviewer
// clicks them in the same daemon's lifetime.
type Operator struct {
	signingKey []byte
	linkTTL    time.Duration
}

// New returns a Human operator signing link tokens with signingKey, valid
// for linkTTL (a sensible default is 7 days: human gates are not polled
// aggressively).
func New(signingKey []byte, linkTTL time.Duration) *Operator {
	if linkTTL <= 0 {
		linkTTL = 7 * 24 * time.Hour
	}
	return &Operator{signingKey: signingKey, linkTTL: linkTTL}
}

func attemptDir(run *model.Run, taskID, attemptID string) string {
	return filepath.Join(run.RootPath, "tasks", taskID, "attempts", attemptID)
}

// gateClaims is the JWT payload embedded in a review link: enough to
// identify the attempt without a server-side session table.
type gateClaims struct {
	jwt.RegisteredClaims
	RunID     string `json:"run_id"`
	TaskID    string `json:"task_id"`
	AttemptID string `json:"attempt_id"`
}

// Prepare creates the evidence directory; the link token is minted by
// Submit. No config_hash is meaningful for a human gate, so it is left empty.
func (o *Operator) Prepare(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return h, campaignerrors.Wrap(err, "human: create evidence dir")
	}
	h.RelativePath = filepath.Join("tasks", h.Task.TaskID, "attempts", h.AttemptID)
	h.Status = model.AttemptCreated
	return h, nil
}

// Submit writes instructions.md with the task's guidance and a signed
// review link, and marks the attempt WAITING_EXTERNAL — there is no
// external system to assign an id, so ExternalID is the attempt id itself.
func (o *Operator) Submit(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	if h.ExternalID != "" {
		return h, nil
	}

	claims := gateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(o.linkTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		RunID:     h.Run.RunID,
		TaskID:    h.Task.TaskID,
		AttemptID: h.AttemptID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(o.signingKey)
	if err != nil {
		return h, campaignerrors.Wrap(err, "human: sign review link")
	}

	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	instructions := fmt.Sprintf("# Review required: %s\n\nReview link token:\n\n%s\n", h.Task.TaskID, signed)
	if err := os.WriteFile(filepath.Join(dir, "instructions.md"), []byte(instructions), 0644); err != nil {
		return h, campaignerrors.Wrap(err, "human: write instructions")
	}

	h.ExternalID = h.AttemptID
	h.Status = model.AttemptWaitingExternal
	h.OperatorData.Extra = map[string]interface{}{"review_token": signed}
	return h, nil
}

// Poll checks for response.json, written by whatever surface (CLI, web
// form) verifies the review link and records the reviewer's decision.
func (o *Operator) Poll(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	data, err := os.ReadFile(filepath.Join(dir, "response.json"))
	if err != nil {
		h.Status = model.AttemptWaitingExternal
		return h, nil
	}

	var decision Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		h.Status = model.AttemptFailed
		h.StatusReason = "malformed response.json: " + err.Error()
		return h, nil
	}

	if decision.Approved {
		h.Status = model.AttemptCompleted
	} else {
		h.Status = model.AttemptFailed
		h.StatusReason = decision.Comment
	}
	return h, nil
}

// Collect returns the recorded response alongside instructions.md.
func (o *Operator) Collect(ctx context.Context, h operator.AttemptHandle) (operator.Collected, error) {
	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	files := map[string]string{
		"instructions.md": filepath.Join(dir, "instructions.md"),
		"response.json":   filepath.Join(dir, "response.json"),
	}

	data, err := os.ReadFile(filepath.Join(dir, "response.json"))
	result := map[string]interface{}{}
	if err == nil {
		var decision Decision
		if json.Unmarshal(data, &decision) == nil {
			result["approved"] = decision.Approved
			result["comment"] = decision.Comment
		}
	}

	return operator.Collected{Files: files, Data: result}, nil
}

// Cancel is a no-op: the engine cannot retract a link already sent to a
// reviewer.
func (o *Operator) Cancel(ctx context.Context, h operator.AttemptHandle) error {
	return nil
}

// VerifyLinkToken parses and validates a review link token, returning the
// attempt it authorizes a decision for.
func (o *Operator) VerifyLinkToken(tokenString string) (runID, taskID, attemptID string, err error) {
	claims := &gateClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return o.signingKey, nil
	})
	if err != nil {
		return "", "", "", campaignerrors.Wrap(err, "human: verify review link")
	}
	return claims.RunID, claims.TaskID, claims.AttemptID, nil
}
