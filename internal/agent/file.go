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
package agent

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"jacs/internal/document"
)

// SignFile signs a descriptor of a file on disk: its path, mimetype and
// SHA-256 content hash. With embed set, the file bytes travel inside the
// document as base64 under contents; otherwise the document references the
// file by hash only.
func (a *Agent) SignFile(path string, embed bool) (map[string]any, error) {
	if err := a.requireLoaded("sign file"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	digest := sha256.Sum256(data)

	mimetype := mime.TypeByExtension(filepath.Ext(path))
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}

	descriptor := map[string]any{
		"path":             path,
		"mimetype":         mimetype,
		"sha256":           hex.EncodeToString(digest[:]),
		document.FieldType: document.TypeArtifact,
	}

	if embed {
		descriptor["contents"] = base64.StdEncoding.EncodeToString(data)
	}

	return a.engine.CreateDocument(descriptor, nil)
}

// CheckFileDigest re-hashes a file on disk against the sha256 recorded in a
// signed file descriptor. Returns an error when the digests differ or the
// descriptor carries none.
func CheckFileDigest(doc map[string]any, path string) error {
	want, _ := doc["sha256"].(string)
	if want == "" {
		return fmt.Errorf("document records no sha256")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	digest := sha256.Sum256(data)

	if hex.EncodeToString(digest[:]) != want {
		return fmt.Errorf("file %s does not match recorded sha256", path)
	}

	return nil
}
