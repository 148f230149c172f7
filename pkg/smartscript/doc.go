/*
Package smartscript implements the front end of the SmartScript templating
language: a two-state lexer, the token and element vocabulary, the document
tree and a parser that builds it.

A SmartScript document is plain text interleaved with tags delimited by
"{$" and "$}". Three tags exist:

	{$ FOR i 1 10 2 $} ... {$END$}   loop from 1 to 10 (inclusive) in steps of 2
	{$= i i "x" @dup $}              evaluate a postfix expression and echo the result

Outside tags, "\\" and "\{" are the only escapes. Inside string literals,
"\\" and "\"" are the only escapes. Tag names FOR and END are
case-insensitive.

Parsing is all-or-nothing: Parse either returns a complete, immutable
*DocumentNode or a *ParseError. A parsed document may be rendered by any
number of goroutines at once; see package engine.

Format writes a document back as canonical source, and Dump prints its tree
for debugging.
*/
package smartscript
