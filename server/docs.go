// Copyright 2025 The etherealog Authors
// This file is part of the etherealog library.
//
// The etherealog library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherealog library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherealog library. If not, see <http://www.gnu.org/licenses/>.

package server

import (
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
)

//go:embed res
var embedded embed.FS

// resources returns the handler serving /res, either from the configured
// directory or from the files built into the binary.
func (s *Server) resources() (http.Handler, error) {
	if dir := s.cfg.StaticDir; dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("static resources: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("static resources: %s is not a directory", dir)
		}
		return http.FileServer(http.Dir(dir)), nil
	}
	sub, err := fs.Sub(embedded, "res")
	if err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(sub)), nil
}

const swaggerUIVersion = "5.17.14"

var swaggerPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>etherealog API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@` + swaggerUIVersion + `/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@` + swaggerUIVersion + `/swagger-ui-bundle.js" crossorigin></script>
  <script>
    window.onload = () => {
      window.ui = SwaggerUIBundle({ url: "/res/openapi.json", dom_id: "#swagger-ui" });
    };
  </script>
</body>
</html>
`)

// serveSwaggerUI renders the API browser for /res/openapi.json.
func serveSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(swaggerPage)
}

var rapiDocPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>etherealog API</title>
  <script type="module" src="https://unpkg.com/rapidoc@9.3.4/dist/rapidoc-min.js"></script>
</head>
<body>
  <rapi-doc spec-url="/res/openapi.json" render-style="read" allow-try="true"></rapi-doc>
</body>
</html>
`)

func serveRapiDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(rapiDocPage)
}
