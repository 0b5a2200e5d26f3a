// Package templates renders the few HTML pages of the service as templ
// components. Edit the .templ sources and run `templ generate`; the
// *_templ.go files are generated.
package templates
