// Package source loads point records from any location afs can read, such as
// local files, mem:// and cloud storage. Records are JSON lines
// ({"id":"a","vector":[1,2]}) or CSV rows (id,v1,v2,...).
package source
