// Package pointcloud owns the point container shared by the search core and its
// consumers.
//
// A Cloud is an ordered, fixed-dimension set of points stored row-major in one
// flat slice. A point's identity is its position. Every cloud carries an
// identity token and a generation counter that is bumped on each mutation, so
// indexes built over a cloud can detect that they have gone stale.
//
// Points with non-finite coordinates stay in the cloud but are never
// searchable.
package pointcloud
