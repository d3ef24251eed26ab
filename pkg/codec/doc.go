// Package codec provides the on-disk tape formats.
//
// Two codecs are available, YAML (the default, with a .yaml extension) and
// JSON. Both share one wire layout:
//
//	version: 1.0.0
//	name: github/users
//	interactions:
//	  - id: 01920c5e-...
//	    recorded: "2026-10-19T10:00:00Z"
//	    duration: 12ms
//	    request:
//	      method: GET
//	      url: https://api.github.com/users/octocat
//	      headers:
//	        Accept: [application/json]
//	    response:
//	      status: 200
//	      statusText: 200 OK
//	      body: '{"login":"octocat"}'
//
// Bodies that are not valid UTF-8 are stored base64 encoded with
// bodyEncoding: base64. Decoding validates the document against an embedded
// JSON schema and rejects unsupported major versions.
package codec
