// Package scene holds the render-side collaborators of the marker
// pipeline: a small scene graph of textured planes, a perspective camera,
// and the Renderer interface with a headless implementation that projects
// visible planes into normalized device coordinates.
//
// The pipeline mutates node transforms and visibility once per tick and
// renders exactly once afterwards.
package scene
