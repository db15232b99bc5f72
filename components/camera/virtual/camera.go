// Package virtual implements the camera of a rendering scene: a left-handed, y-up camera that
// rotates in Z-X-Y order and projects with an arbitrary 4x4 projection matrix.
package virtual

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/camcalib/utils"
)

const (
	// DefaultNearClipPlane matches common engine defaults.
	DefaultNearClipPlane = 0.3
	// DefaultFarClipPlane matches common engine defaults.
	DefaultFarClipPlane = 1000.
	// DefaultVerticalFieldOfView is used for the initial symmetric projection, in degrees.
	DefaultVerticalFieldOfView = 60.
)

// Config are the attributes of a virtual camera.
type Config struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Near   float64 `json:"near,omitempty"`
	Far    float64 `json:"far,omitempty"`
}

// Validate checks that the config attributes are valid for a virtual camera.
func (conf *Config) Validate(path string) error {
	if conf.Width <= 0 || conf.Height <= 0 {
		return errors.Errorf("%s: viewport must be positive, got %dx%d", path, conf.Width, conf.Height)
	}
	if conf.Near < 0 || (conf.Near > 0 && conf.Far > 0 && conf.Far <= conf.Near) {
		return errors.Errorf("%s: clip planes must satisfy 0 < near < far, got near=%v far=%v", path, conf.Near, conf.Far)
	}
	return nil
}

// Camera is a virtual camera. It is safe for concurrent use.
type Camera struct {
	mu         sync.RWMutex
	width      int
	height     int
	near       float64
	far        float64
	projection mgl64.Mat4
	position   r3.Vector
	euler      r3.Vector
}

// NewCamera returns a camera at the origin with default clip planes and a symmetric projection.
func NewCamera(width, height int) *Camera {
	c, err := NewCameraFromConfig(&Config{Width: width, Height: height})
	if err != nil {
		// only reachable with a non-positive size; keep the zero value usable
		return &Camera{width: width, height: height, near: DefaultNearClipPlane, far: DefaultFarClipPlane}
	}
	return c
}

// NewCameraFromConfig returns a camera from a validated config; zero clip planes take the defaults.
func NewCameraFromConfig(conf *Config) (*Camera, error) {
	if err := conf.Validate("camera"); err != nil {
		return nil, err
	}
	near, far := conf.Near, conf.Far
	if near == 0 {
		near = DefaultNearClipPlane
	}
	if far == 0 {
		far = DefaultFarClipPlane
	}
	if far <= near {
		return nil, errors.Errorf("far clip plane %v must be beyond near clip plane %v", far, near)
	}
	aspect := float64(conf.Width) / float64(conf.Height)
	return &Camera{
		width:      conf.Width,
		height:     conf.Height,
		near:       near,
		far:        far,
		projection: mgl64.Perspective(utils.DegToRad(DefaultVerticalFieldOfView), aspect, near, far),
	}, nil
}

// SetProjectionMatrix replaces the projection matrix.
func (c *Camera) SetProjectionMatrix(m mgl64.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = m
}

// ProjectionMatrix returns the projection matrix.
func (c *Camera) ProjectionMatrix() mgl64.Mat4 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projection
}

// SetPosition moves the camera in world space.
func (c *Camera) SetPosition(p r3.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
}

// Position returns the camera position.
func (c *Camera) Position() r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// SetEulerAngles sets the orientation as X, Y, Z angles in degrees, applied Z first, then X, then Y.
func (c *Camera) SetEulerAngles(e r3.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.euler = e
}

// EulerAngles returns the orientation in degrees.
func (c *Camera) EulerAngles() r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.euler
}

// SetClipPlanes changes the near and far clip planes.
func (c *Camera) SetClipPlanes(near, far float64) error {
	if near <= 0 || far <= near {
		return errors.Errorf("clip planes must satisfy 0 < near < far, got near=%v far=%v", near, far)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near, c.far = near, far
	return nil
}

// NearClipPlane returns the near clip distance.
func (c *Camera) NearClipPlane() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.near
}

// FarClipPlane returns the far clip distance.
func (c *Camera) FarClipPlane() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.far
}

// PixelWidth returns the viewport width in pixels.
func (c *Camera) PixelWidth() int {
	return c.width
}

// PixelHeight returns the viewport height in pixels.
func (c *Camera) PixelHeight() int {
	return c.height
}

// LocalToWorld is T(position)·Ry(Y)·Rx(X)·Rz(Z).
func (c *Camera) LocalToWorld() mgl64.Mat4 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localToWorld()
}

func (c *Camera) localToWorld() mgl64.Mat4 {
	return mgl64.Translate3D(c.position.X, c.position.Y, c.position.Z).
		Mul4(mgl64.HomogRotate3DY(utils.DegToRad(c.euler.Y))).
		Mul4(mgl64.HomogRotate3DX(utils.DegToRad(c.euler.X))).
		Mul4(mgl64.HomogRotate3DZ(utils.DegToRad(c.euler.Z)))
}

// WorldToCamera maps world points into the view space the projection expects: the camera looks
// down -z, so the local z axis is negated.
func (c *Camera) WorldToCamera() mgl64.Mat4 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldToCamera()
}

func (c *Camera) worldToCamera() mgl64.Mat4 {
	return mgl64.Scale3D(1, 1, -1).Mul4(c.localToWorld().Inv())
}

// WorldToScreenPoint projects a world point to screen pixels with the origin at the bottom left.
// Z is the distance in front of the camera; points behind the camera have a negative Z.
func (c *Camera) WorldToScreenPoint(p r3.Vector) r3.Vector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view := c.worldToCamera().Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	clip := c.projection.Mul4x1(view)
	w := clip.W()
	if w == 0 {
		return r3.Vector{X: math.NaN(), Y: math.NaN(), Z: -view.Z()}
	}
	return r3.Vector{
		X: (clip.X()/w + 1) / 2 * float64(c.width),
		Y: (clip.Y()/w + 1) / 2 * float64(c.height),
		Z: -view.Z(),
	}
}

// WorldToGUIPoint projects a world point to pixels with the origin at the top left, the way
// images are addressed.
func (c *Camera) WorldToGUIPoint(p r3.Vector) r2.Point {
	screen := c.WorldToScreenPoint(p)
	return r2.Point{X: screen.X, Y: float64(c.height) - screen.Y}
}
