/*
The sync package implements dirsync's comparison algorithm. It decides which
files served by a `dirsync serve` process need to be fetched so that the
local sync root matches the remote one.

There are two kinds of snapshots:
1) Remote snapshots -- The flat file listing returned by the server in
   response to a ListFiles command.
2) Local snapshots -- The result of scanning the local sync root.

BuildTree arranges a remote snapshot into a tree keyed by path segment and
classifies every file against the local snapshot. A file is up to date if the
local file at the same path has the same size and modification time. Any
other file, including files that don't exist locally, needs an update.

The sync algorithm only deals with files. Empty directories aren't synced,
and files that only exist locally are left alone.
*/
package sync
