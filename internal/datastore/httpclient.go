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

package datastore

import (
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
)

// cleanhttpTransport returns a fresh, unpooled HTTP transport, matching the
// teacher's own use of hashicorp/go-cleanhttp for one-shot outbound calls
// that shouldn't share connection state across titles.
func cleanhttpTransport() http.RoundTripper {
	return cleanhttp.DefaultTransport()
}
