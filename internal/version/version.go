/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package version

import (
	"runtime"
)

// HeaderRevision identifies the revision of the reserved jacs* document
// header this binary produces and verifies. Peers compare it when exchanging
// signed documents across deployments.
const HeaderRevision = "v1"

// gitCommit and version are injected at build time via ldflags.
// Example: go build -ldflags "-X jacs/internal/version.gitCommit=abc123"
var (
	gitCommit = ""
	version   = ""
)

// BuildInfo describes the running binary: build version, the document header
// revision it speaks, git commit, and Go toolchain.
// Used for tracking deployments and debugging interop between agents.
type BuildInfo struct {
	Version        string `json:"version,omitempty"`
	HeaderRevision string `json:"header_revision"`
	GitCommit      string `json:"git_commit,omitempty"`
	GoVersion      string `json:"go_version,omitempty"`
}

// GetVersion returns the application version string.
// The version is typically injected at build time via ldflags.
func GetVersion() string {
	return version
}

// Get returns complete build information. The git commit and version come
// from ldflags, the header revision is compiled in, and the Go version is
// detected at runtime.
func Get() BuildInfo {
	return BuildInfo{
		Version:        GetVersion(),
		HeaderRevision: HeaderRevision,
		GitCommit:      gitCommit,
		GoVersion:      runtime.Version(),
	}
}
