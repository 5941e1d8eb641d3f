// Copyright 2025 Superlearn Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpx

import (
	"github.com/gofiber/fiber/v2"
)

// Every endpoint answers either {"success": true, ...} or {"error": "..."}.
// The UI keys off the success flag; error strings carry a human-readable
// next action.

// WithSuccess returns a success envelope merged with detail fields.
func WithSuccess(c *fiber.Ctx, detail fiber.Map) error {
	body := fiber.Map{"success": true}
	for k, v := range detail {
		body[k] = v
	}
	return c.JSON(body)
}

// WithFailure returns {"success": false, ...} with detail fields, keeping
// HTTP 200 for callers that inspect the body rather than the status.
func WithFailure(c *fiber.Ctx, detail fiber.Map) error {
	body := fiber.Map{"success": false}
	for k, v := range detail {
		body[k] = v
	}
	return c.JSON(body)
}

// WithError returns {"error": msg} with the given HTTP status.
func WithError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
