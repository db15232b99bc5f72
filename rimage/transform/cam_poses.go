package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/camcalib/spatialmath"
)

const (
	// collinearityTolerance is the ratio of the second to the largest spread of the target points
	// below which the points are treated as a line.
	collinearityTolerance = 1e-9
	// planarityTolerance is the ratio of the smallest to the second spread of the target points
	// below which the target is treated as a plane. Measured flat targets are never exactly flat.
	planarityTolerance = 1e-3
)

// CamPose stores the rotation and translation taking target (world) points into the camera frame.
type CamPose struct {
	Rotation    *spatialmath.RotationMatrix
	Translation r3.Vector
}

// NewCamPoseFromMat creates a camera pose from a 3x4 [R|t] matrix. The rotation block is
// projected onto the nearest rotation.
func NewCamPoseFromMat(pose mat.Matrix) (*CamPose, error) {
	if r, c := pose.Dims(); r != 3 || c != 4 {
		return nil, errors.Errorf("pose matrix must be 3x4, got %dx%d", r, c)
	}
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	nearest, err := nearestRotation(rot)
	if err != nil {
		return nil, err
	}
	rm, err := spatialmath.NewRotationMatrixFromDense(nearest)
	if err != nil {
		return nil, err
	}
	return &CamPose{
		Rotation:    rm,
		Translation: r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)},
	}, nil
}

// NewCamPoseFromVectors builds a pose from a rotation vector and a translation.
func NewCamPoseFromVectors(rvec, tvec r3.Vector) *CamPose {
	return &CamPose{Rotation: spatialmath.NewRotationMatrixFromRotationVector(rvec), Translation: tvec}
}

// RotationVector returns the axis-angle form of the rotation.
func (cp *CamPose) RotationVector() r3.Vector {
	return cp.Rotation.RotationVector()
}

// Transform maps a world point into the camera frame.
func (cp *CamPose) Transform(pt r3.Vector) r3.Vector {
	return cp.Rotation.Mul(pt).Add(cp.Translation)
}

// Position is the camera center in world coordinates, -Rᵀ·t.
func (cp *CamPose) Position() r3.Vector {
	return cp.Rotation.Transpose().Mul(cp.Translation).Mul(-1)
}

// adjustPoseSign adjusts the sign of a pose so that its 3x3 block has a positive determinant.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	subPose := pose.Slice(0, 3, 0, 3)
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// EstimateInitialPose computes a closed form pose of a calibrated camera from pixel/world
// correspondences. Planar targets go through a homography, other targets through a linear
// projection matrix estimate which needs at least 6 points.
func EstimateInitialPose(model *PinholeCameraModel, imagePoints []r2.Point, worldPoints []r3.Vector) (*CamPose, error) {
	if len(imagePoints) != len(worldPoints) {
		return nil, errors.Errorf("image and world points must have the same length, got %d and %d",
			len(imagePoints), len(worldPoints))
	}
	if len(imagePoints) < MinPointsPerView {
		return nil, errors.Wrapf(ErrTooFewPoints, "pose estimation needs at least %d points, got %d",
			MinPointsPerView, len(imagePoints))
	}
	normalized := make([]r2.Point, len(imagePoints))
	for i, px := range imagePoints {
		normalized[i] = model.PixelToNormalized(px)
	}

	plane, err := fitPlane(worldPoints)
	if err != nil {
		return nil, err
	}
	if plane.planar {
		return poseFromPlanarTarget(plane, normalized, worldPoints)
	}
	if len(worldPoints) < 6 {
		return nil, errors.Wrapf(ErrDegenerateCorrespondences,
			"non-planar target needs at least 6 points, got %d", len(worldPoints))
	}
	return poseFromProjectionMatrix(normalized, worldPoints)
}

// targetPlane is the best fitting plane through a set of target points. Basis holds the in-plane
// axes in its first two columns and the normal in the third.
type targetPlane struct {
	centroid r3.Vector
	basis    *spatialmath.RotationMatrix
	planar   bool
}

func fitPlane(pts []r3.Vector) (*targetPlane, error) {
	centroid := r3.Vector{}
	for _, pt := range pts {
		centroid = centroid.Add(pt)
	}
	centroid = centroid.Mul(1 / float64(len(pts)))

	centered := mat.NewDense(len(pts), 3, nil)
	for i, pt := range pts {
		d := pt.Sub(centroid)
		centered.SetRow(i, []float64{d.X, d.Y, d.Z})
	}
	mats, err := performSVD(centered)
	if err != nil {
		return nil, err
	}
	if mats.Values[0] == 0 || mats.Values[1] <= collinearityTolerance*mats.Values[0] {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "target points are coincident or collinear")
	}
	e1 := r3.Vector{X: mats.V.At(0, 0), Y: mats.V.At(1, 0), Z: mats.V.At(2, 0)}
	e2 := r3.Vector{X: mats.V.At(0, 1), Y: mats.V.At(1, 1), Z: mats.V.At(2, 1)}
	e3 := e1.Cross(e2)
	basis, err := spatialmath.NewRotationMatrix([]float64{
		e1.X, e2.X, e3.X,
		e1.Y, e2.Y, e3.Y,
		e1.Z, e2.Z, e3.Z,
	})
	if err != nil {
		return nil, err
	}
	smallest := 0.0
	if len(mats.Values) > 2 {
		smallest = mats.Values[2]
	}
	return &targetPlane{
		centroid: centroid,
		basis:    basis,
		planar:   smallest <= planarityTolerance*mats.Values[1],
	}, nil
}

// toPlane expresses a target point in plane coordinates; the third component is the
// distance from the plane.
func (p *targetPlane) toPlane(pt r3.Vector) r3.Vector {
	return p.basis.Transpose().Mul(pt.Sub(p.centroid))
}

// poseFromPlanarTarget decomposes the plane-to-image homography H = λ[r1 r2 t] and then moves the
// pose from plane coordinates back to world coordinates.
func poseFromPlanarTarget(plane *targetPlane, normalized []r2.Point, worldPoints []r3.Vector) (*CamPose, error) {
	planar := make([]r2.Point, len(worldPoints))
	for i, pt := range worldPoints {
		q := plane.toPlane(pt)
		planar[i] = r2.Point{X: q.X, Y: q.Y}
	}
	h, err := ComputeHomography(planar, normalized)
	if err != nil {
		return nil, err
	}
	h1, h2, h3 := h.Col(0), h.Col(1), h.Col(2)
	n1, n2 := floats.Norm(h1, 2), floats.Norm(h2, 2)
	if n1 == 0 || n2 == 0 {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "homography has a zero column")
	}
	lambda := 2 / (n1 + n2)
	// the target must lie in front of the camera
	if h3[2] < 0 {
		lambda = -lambda
	}
	r1 := r3.Vector{X: h1[0], Y: h1[1], Z: h1[2]}.Mul(lambda)
	r2v := r3.Vector{X: h2[0], Y: h2[1], Z: h2[2]}.Mul(lambda)
	r3v := r1.Cross(r2v)
	t := r3.Vector{X: h3[0], Y: h3[1], Z: h3[2]}.Mul(lambda)

	planePose, err := NewCamPoseFromMat(mat.NewDense(3, 4, []float64{
		r1.X, r2v.X, r3v.X, t.X,
		r1.Y, r2v.Y, r3v.Y, t.Y,
		r1.Z, r2v.Z, r3v.Z, t.Z,
	}))
	if err != nil {
		return nil, err
	}
	// X_cam = Rp·Bᵀ·(P - c) + tp
	rot := planePose.Rotation.MatMul(plane.basis.Transpose())
	return &CamPose{
		Rotation:    rot,
		Translation: planePose.Translation.Sub(rot.Mul(plane.centroid)),
	}, nil
}

// poseFromProjectionMatrix solves x = [R|t]·X linearly for normalized image points and then
// extracts the closest rigid transform.
func poseFromProjectionMatrix(normalized []r2.Point, worldPoints []r3.Vector) (*CamPose, error) {
	worldN, T, err := normalizeVectors(worldPoints)
	if err != nil {
		return nil, err
	}
	a := mat.NewDense(2*len(worldN), 12, nil)
	for i, X := range worldN {
		x, y := normalized[i].X, normalized[i].Y
		a.SetRow(2*i, []float64{X.X, X.Y, X.Z, 1, 0, 0, 0, 0, -x * X.X, -x * X.Y, -x * X.Z, -x})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, X.X, X.Y, X.Z, 1, -y * X.X, -y * X.Y, -y * X.Z, -y})
	}
	p, err := nullVector(a, 11)
	if err != nil {
		return nil, err
	}
	var pose mat.Dense
	pose.Mul(mat.NewDense(3, 4, p), T)
	adjustPoseSign(&pose)

	mats, err := performSVD(pose.Slice(0, 3, 0, 3))
	if err != nil {
		return nil, err
	}
	scale := (mats.Values[0] + mats.Values[1] + mats.Values[2]) / 3
	if scale == 0 || math.IsNaN(scale) {
		return nil, errors.Wrap(ErrDegenerateCorrespondences, "projection matrix has no rotation part")
	}
	pose.Scale(1/scale, &pose)
	return NewCamPoseFromMat(&pose)
}
