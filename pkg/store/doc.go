/*
Package store persists the captain's state as three JSON documents under
<data_dir>/captain/: crew.json, chores.json, and users.json.

Each document is replaced wholesale on every save via write-to-temp-and-
rename, so concurrent readers (including out-of-process ones such as the
web front-end) always see a complete file. One mutex per document
serializes writers; the registries built on top take that mutex for the
duration of a read-mutate-write cycle.

Load failures are deliberately soft: a missing or corrupt document logs
and yields an empty one, because the control loop must keep running on a
fresh or damaged data directory.
*/
package store
