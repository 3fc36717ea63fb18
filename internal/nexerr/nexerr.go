// Copyright 2026 The Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//     http://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nexerr classifies the four error kinds the harvester distinguishes:
// transport failures that the retry wrapper retries forever, named
// application-level RPC errors that callers must interpret, HTTP failures on
// the signed blob URL, and everything else (structural/unexpected), which is
// left as a plain Go error for a worker to log and drop.
package nexerr

import (
	"errors"
	"fmt"
)

// Transport represents a connection-, handshake- or socket-level failure
// talking to a game server. The retry wrapper rebuilds the session and
// retries without bound whenever an error satisfies errors.As into this type.
type Transport struct {
	// Op names the call that failed, e.g. "dial", "login", "get_ranking".
	Op  string
	Err error
}

func (e *Transport) Error() string {
	return fmt.Sprintf("nex transport: %s: %v", e.Op, e.Err)
}

func (e *Transport) Unwrap() error { return e.Err }

// NewTransport wraps err as a Transport error.
func NewTransport(op string, err error) error {
	return &Transport{Op: op, Err: err}
}

// Application represents a named RPC error returned by the server, such as
// Core::NotImplemented or DataStore::NotFound. Callers decide what to do
// with it; the retry wrapper never retries on it.
type Application struct {
	// Name is the wire error name, e.g. "DataStore::NotFound".
	Name string
}

func (e *Application) Error() string { return "nex application error: " + e.Name }

// NewApplication builds an Application error for the given wire name.
func NewApplication(name string) error {
	return &Application{Name: name}
}

// IsApplication reports whether err is an Application error with the given
// name.
func IsApplication(err error, name string) bool {
	var app *Application
	if errors.As(err, &app) {
		return app.Name == name
	}
	return false
}

// Well-known application error names used throughout the harvester.
const (
	CoreNotImplemented  = "Core::NotImplemented"
	DataStoreNotFound   = "DataStore::NotFound"
	RankingNotFound     = "Ranking::NotFound"
)

// HTTP represents a failure performing the plain HTTPS GET against a signed
// blob URL: a timeout or a non-2xx status. It is recorded into the blob row
// and never retried at this layer.
type HTTP struct {
	StatusCode int
	Err        error
}

func (e *HTTP) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nex http: status=%d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("nex http: status=%d", e.StatusCode)
}

func (e *HTTP) Unwrap() error { return e.Err }

// NewHTTP builds an HTTP error.
func NewHTTP(statusCode int, err error) error {
	return &HTTP{StatusCode: statusCode, Err: err}
}

// IsTransport reports whether err is (or wraps) a Transport error.
func IsTransport(err error) bool {
	var t *Transport
	return errors.As(err, &t)
}

// IsApplicationErr reports whether err is (or wraps) any Application error.
func IsApplicationErr(err error) bool {
	var a *Application
	return errors.As(err, &a)
}

// IsHTTP reports whether err is (or wraps) an HTTP error.
func IsHTTP(err error) bool {
	var h *HTTP
	return errors.As(err, &h)
}
