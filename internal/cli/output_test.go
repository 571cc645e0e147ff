package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/fatih/color"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Deterministic text output in tests.
	color.NoColor = true
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"seal_id": "seal-1"}
	err := formatter.Success(data, func(io.Writer) {})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Failure("PASS_FAILED", "pass failed in Idle", []string{"presence not established"})
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "PASS_FAILED", resp.Error.Code)
	assert.Equal(t, "pass failed in Idle", resp.Error.Message)
	assert.Equal(t, []string{"presence not established"}, resp.Error.Reasons)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success(nil, func(w io.Writer) {
		fmt.Fprintln(w, "sealed generation 3")
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "sealed generation 3")
}

func TestOutputFormatter_TextFailureListsEveryReason(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Failure("DISPATCH_DENIED", "dispatch denied", []string{
		"anchors not verified",
		"quorum not met for publish-keys",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "DENIED")
	assert.Contains(t, out, "  - anchors not verified")
	assert.Contains(t, out, "  - quorum not met for publish-keys")
}

func TestOutputFormatter_DenyReasonsGolden(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Failure("PASS_FAILED", "pass failed in AnchorSubmitted", []string{
		"transparency log: no inclusion proofs at out/REKOR_PROOFS.jsonl",
		"durable storage: no pin report at out/PIN_REPORT.json",
	})
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "deny_reasons", buf.Bytes())
}

func TestExitError(t *testing.T) {
	underlying := errors.New("db locked")
	err := WrapExitError(ExitCommandError, "failed to open database", underlying)

	assert.Equal(t, "failed to open database: db locked", err.Error())
	assert.ErrorIs(t, err, underlying)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGetExitCode_PlainError(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("anything")))
}

func TestGetExitCode_Wrapped(t *testing.T) {
	inner := WrapExitError(ExitCommandError, "bad flags", nil)
	wrapped := fmt.Errorf("context: %w", inner)
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
}
