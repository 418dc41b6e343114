// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status defines the closed status-code taxonomy shared by the HTTP
// and Kafka surfaces. Every response body carries the message assigned to
// its code by this table; downstream consumers branch on these strings.
package status

// Status codes used by every pipeline response, on both ingress surfaces.
const (
	Success            = 201
	InvalidRequest     = 400
	UnauthorizedServer = 403
	EmbeddingRequired  = 428
	InternalError      = 500
)

var messages = map[int]string{
	Success:            "success",
	InvalidRequest:     "invalid_request",
	UnauthorizedServer: "unauthorized_server",
	EmbeddingRequired:  "embedding_required",
	InternalError:      "internal_server_error",
}

// Message returns the canonical message string for a status code.
// Unknown codes map to "unknown_status_message" rather than failing, so a
// response envelope can always be built.
func Message(code int) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return "unknown_status_message"
}
