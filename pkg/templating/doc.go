/*
Package templating manages the SmartScript documents served from a
directory tree.

A TemplateManager parses every script under its directory once, keeps the
immutable trees in memory and renders them on demand through a shared
engine.Engine. Refresh reparses the directory without a restart; a script
that fails to parse rejects the whole refresh and the previous set stays in
service. ExecuteString renders ad-hoc source, caching parsed trees by
content hash, which suits previews and tests.

All methods are safe for concurrent use.
*/
package templating
