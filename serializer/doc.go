/*
Package serializer turns message types into stable, reversible names and message values into bytes.
Both are collaborators of the schedulers and the adapters; the defaults use JSON payloads and
"Name:package/path" type names.
*/
package serializer
