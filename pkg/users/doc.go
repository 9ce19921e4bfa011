/*
Package users keeps per-owner quota records and the policy deciding
which chores a user over their time budget has to give up.

A user record is optional. No record, or a record with zero limits,
means the owner may queue as many chores as they like for as long as
they like. Records are written through user-set and take effect on the
next submit or sweep, never retroactively on terminal chores.
*/
package users
