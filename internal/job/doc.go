// Package job builds the task bodies that the scheduler submits: camera
// captures, filtered image exports, and video renders.
//
// Network fetch and video encoding stay behind narrow function types
// supplied by the caller; filesystem access goes through afero so job
// bodies can be exercised against an in-memory fs.
package job
