// Package core provides the business logic for lock audit log exports.
//
// # Error Codes Reference
//
// This file maps technical errors to user-friendly messages with codes for
// support reference. Codes are grouped by category:
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Scope required: No owner account was selected
//	         Patterns: "owner_account_id is required"
//
//	VAL002 - Malformed scope: The selected account or lock id is not valid
//	         Patterns: "is malformed"
//
//	VAL003 - Bad sort order: The order parameter is not asc or desc
//	         Patterns: "order must be"
//
// # Authorization Errors (AUTH001-AUTH099)
//
//	AUTH001 - Signed out: The platform rejected the stored credentials
//	          Patterns: "status 401", "session not found"
//
//	AUTH002 - Forbidden: The signed-in user may not read this account's logs
//	          Patterns: "status 403"
//
//	AUTH003 - Sign-in failed: The OAuth state did not match or the code exchange failed
//	          Patterns: "oauth state mismatch", "oauth exchange"
//
// # Remote API Errors (REM001-REM099)
//
//	REM001 - Not found: Account or lock does not exist
//	         Patterns: "status 404"
//
//	REM002 - Platform error: The lock platform returned a server error
//	         Patterns: "remote returned status 5"
//
//	REM003 - Bad response: The platform sent data we could not read
//	         Patterns: "not a json array", "decode response", "invalid identifier"
//
//	REM004 - Unreachable: The platform could not be reached
//	         Patterns: "connection refused", "no such host", "connection reset"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Busy: Too many exports are running
//	         Patterns: "too many exports"
//
//	EXP002 - Timeout: The export took too long
//	         Patterns: "deadline exceeded", "timeout"
//
//	EXP003 - Cancelled: The request was cancelled
//	         Patterns: "context canceled"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the application logs for the
// original error using the request id.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains. The first
// match wins, so specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgSignedOut = UserMessage{
		Message: "Your session with the lock platform has expired",
		Action:  "Sign in again",
		Code:    "AUTH001",
	}
	msgBadResponse = UserMessage{
		Message: "The lock platform sent data that could not be read",
		Action:  "Please try again later or contact support",
		Code:    "REM003",
	}
	msgUnreachable = UserMessage{
		Message: "The lock platform could not be reached",
		Action:  "Please try again in a few moments",
		Code:    "REM004",
	}
	msgTimeout = UserMessage{
		Message: "The export took too long",
		Action:  "Export a single lock instead of the whole account, or try again later",
		Code:    "EXP002",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// Order matters: more specific patterns come first.
var errorPatterns = []errorPattern{
	// Validation
	{
		pattern: "owner_account_id is required",
		msg: UserMessage{
			Message: "No owner account was selected",
			Action:  "Pick an owner account and try again",
			Code:    "VAL001",
		},
	},
	{
		pattern: "is malformed",
		msg: UserMessage{
			Message: "The selected account or lock is not valid",
			Action:  "Go back to the export page and pick again",
			Code:    "VAL002",
		},
	},
	{
		pattern: "order must be",
		msg: UserMessage{
			Message: "The requested sort order is not supported",
			Action:  "Use the oldest first or newest first links",
			Code:    "VAL003",
		},
	},

	// Authorization
	{pattern: "status 401", msg: msgSignedOut},
	{pattern: "session not found", msg: msgSignedOut},
	{
		pattern: "status 403",
		msg: UserMessage{
			Message: "You are not allowed to read the logs of this account",
			Action:  "Ask an account administrator for access",
			Code:    "AUTH002",
		},
	},
	{
		pattern: "oauth state mismatch",
		msg: UserMessage{
			Message: "Sign-in could not be completed",
			Action:  "Start the sign-in again",
			Code:    "AUTH003",
		},
	},
	{
		pattern: "oauth exchange",
		msg: UserMessage{
			Message: "Sign-in could not be completed",
			Action:  "Start the sign-in again",
			Code:    "AUTH003",
		},
	},

	// Remote API
	{
		pattern: "status 404",
		msg: UserMessage{
			Message: "The account or lock was not found",
			Action:  "Check that it still exists on the lock platform",
			Code:    "REM001",
		},
	},
	{
		pattern: "remote returned status 5",
		msg: UserMessage{
			Message: "The lock platform reported an error",
			Action:  "Please try again later",
			Code:    "REM002",
		},
	},
	{pattern: "not a json array", msg: msgBadResponse},
	{pattern: "decode response", msg: msgBadResponse},
	{pattern: "invalid identifier", msg: msgBadResponse},
	{pattern: "connection refused", msg: msgUnreachable},
	{pattern: "no such host", msg: msgUnreachable},
	{pattern: "connection reset", msg: msgUnreachable},

	// Export
	{
		pattern: "too many exports",
		msg: UserMessage{
			Message: "Too many exports are running",
			Action:  "Please wait a moment and try again",
			Code:    "EXP001",
		},
	},
	{pattern: "deadline exceeded", msg: msgTimeout},
	{pattern: "timeout", msg: msgTimeout},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The request was cancelled",
			Action:  "Please try again",
			Code:    "EXP003",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error into a user-friendly message.
// Returns an empty UserMessage for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
