// Copyright (c) 2025, The gpupv Authors. All rights reserved.
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

// Package serializer writes command and API output as JSON, YAML, or a
// text table, and reads request files back.
//
// # Formats
//
//   - json: indented, for scripts and API consumers (encoding/json)
//   - yaml: for humans and request files (gopkg.in/yaml.v3)
//   - table: for the terminal; write-only
//
// Values implementing Table are printed as aligned rows. Anything else is
// flattened into dotted FIELD/VALUE pairs.
//
// # Usage
//
//	w := serializer.NewFileWriterOrStdout(serializer.FormatYAML, path)
//	defer w.Close()
//	if err := w.Serialize(ctx, devices); err != nil {
//	    return err
//	}
//
// Reading a request file:
//
//	req, err := serializer.FromFile[configurator.ApplyRequest]("request.yaml")
//
// HTTP handlers use RespondJSON and DecodeJSONBody.
package serializer
