/*
Package engine renders SmartScript documents.

An Engine is immutable once built and may render any number of documents
concurrently. Every call to Render gets its own loop scopes and value stack,
so the only shared state is the parsed document, which is read-only.

Echo tags are evaluated as postfix expressions:

	{$= 2 3 + $}            5
	{$= 2 3.0 + $}          5.0
	{$= "10" "3" / $}       3
	{$= x "0.00" @decfmt $} x with two decimals

Values are dynamically typed: Empty, Integer, Float or Text. Text takes part
in arithmetic only if it is a complete decimal number, Empty counts as zero,
and mixing Integer with Float yields Float. Integer overflow is an error.

The built-in function library covers math (sin, decfmt), stack shuffling
(dup, swap) and access to the RenderContext (setMimeType, paramGet,
pparamGet, pparamSet, pparamDel, tparamGet, tparamSet, tparamDel, include).
WithFunction adds or replaces functions.
*/
package engine
