package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/fengyu3941/marker-based-ar-demo/testutils"
)

func createTestImage() *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func testFASTConfig() *FASTConfig {
	return &FASTConfig{
		Threshold:      20,
		NMatchesCircle: 9,
		NMSWinSize:     7,
		Oriented:       true,
	}
}

func TestLoadFASTConfiguration(t *testing.T) {
	path := testutils.WriteJSONFile(t, "fast.json", testFASTConfig())
	cfg, err := LoadFASTConfiguration(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, testFASTConfig())

	bad := testFASTConfig()
	bad.NMatchesCircle = 17
	path = testutils.WriteJSONFile(t, "fast.json", bad)
	_, err = LoadFASTConfiguration(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "n_matches_circle")

	path = testutils.WriteFile(t, "fast.json", []byte("{"))
	_, err = LoadFASTConfiguration(path)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadFASTConfiguration("/does/not/exist.json")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFASTConfigValidate(t *testing.T) {
	test.That(t, testFASTConfig().Validate("fast"), test.ShouldBeNil)
	for _, mutate := range []func(*FASTConfig){
		func(c *FASTConfig) { c.Threshold = 0 },
		func(c *FASTConfig) { c.Threshold = 256 },
		func(c *FASTConfig) { c.NMatchesCircle = 0 },
		func(c *FASTConfig) { c.NMSWinSize = 0 },
	} {
		cfg := testFASTConfig()
		mutate(cfg)
		test.That(t, cfg.Validate("fast"), test.ShouldNotBeNil)
	}
}

func TestGetPointValuesInNeighborhood(t *testing.T) {
	// create test image
	rectImage := createTestImage()
	// testing cross neighborhood
	vals := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CrossIdx)
	// test length
	test.That(t, len(vals), test.ShouldEqual, 4)
	// test values at a corner of the rectangle
	test.That(t, vals[0], test.ShouldEqual, 255)
	test.That(t, vals[1], test.ShouldEqual, 255)
	test.That(t, vals[2], test.ShouldEqual, 0)
	test.That(t, vals[3], test.ShouldEqual, 0)
	// testing circle neighborhood
	valsCircle := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CircleIdx)
	// test length
	test.That(t, len(valsCircle), test.ShouldEqual, 16)
	// test values at a corner of the rectangle
	test.That(t, valsCircle[0], test.ShouldEqual, 0)
	test.That(t, valsCircle[1], test.ShouldEqual, 0)
	test.That(t, valsCircle[2], test.ShouldEqual, 0)
	test.That(t, valsCircle[3], test.ShouldEqual, 0)
	test.That(t, valsCircle[4], test.ShouldEqual, 255)
	test.That(t, valsCircle[5], test.ShouldEqual, 255)
	test.That(t, valsCircle[6], test.ShouldEqual, 255)
	test.That(t, valsCircle[7], test.ShouldEqual, 255)
	test.That(t, valsCircle[8], test.ShouldEqual, 255)
	for i := 9; i < len(valsCircle); i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
}

func TestIsValidSlice(t *testing.T) {
	tests := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 2, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 3, false},
		{[]float64{1, 0, 1, 0, 1, 0, 0}, 2, false},
		// an arc cannot be longer than the circle
		{[]float64{1, 1, 1}, 4, false},
		{[]float64{1, 1, 1}, 3, true},
		// arcs wrap around the end of the circle
		{[]float64{1, 1, 0, 0, 0, 1, 1}, 4, true},
		{[]float64{1, 1, 0, 0, 0, 1, 1}, 5, false},
	}
	for _, tst := range tests {
		test.That(t, isValidSliceVals(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestSumPositiveValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, 4},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, 0},
	}
	for _, tst := range tests {
		test.That(t, sumOfPositiveValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestSumNegativeValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, -2},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, -6},
	}
	for _, tst := range tests {
		test.That(t, sumOfNegativeValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestGetBrighterValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{0, 0, 0, 0, 1, 1}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getBrighterValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestGetDarkerValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{1, 0, 1, 1, 0, 0}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getDarkerValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestComputeFAST(t *testing.T) {
	cfg := testFASTConfig()
	// every inner corner of the rectangle sees 11 contiguous dark pixels on its circle
	rectImage := createTestImage()
	kps, responses := ComputeFAST(rectImage, cfg)
	test.That(t, kps, test.ShouldResemble, []image.Point{{50, 30}, {99, 30}, {50, 149}, {99, 149}})
	test.That(t, len(responses), test.ShouldEqual, 4)
	for _, r := range responses {
		test.That(t, r, test.ShouldEqual, 11*(255-20))
	}

	// a flat image has no corner
	kps, responses = ComputeFAST(testutils.UniformGray(64, 64, 128), cfg)
	test.That(t, kps, test.ShouldBeEmpty)
	test.That(t, responses, test.ShouldBeEmpty)

	// too small to hold a circle
	kps, _ = ComputeFAST(testutils.UniformGray(6, 6, 0), cfg)
	test.That(t, kps, test.ShouldBeNil)

	// a sub image is processed in its own coordinates
	sub := rectImage.SubImage(image.Rect(40, 20, 120, 160)).(*image.Gray)
	kps, _ = ComputeFAST(sub, cfg)
	test.That(t, kps, test.ShouldResemble, []image.Point{{10, 10}, {59, 10}, {10, 129}, {59, 129}})
}

func TestComputeFASTDeterministic(t *testing.T) {
	img := testutils.RandomCellImage(160, 120, 12, 3)
	cfg := testFASTConfig()
	kps1, resp1 := ComputeFAST(img, cfg)
	kps2, resp2 := ComputeFAST(img, cfg)
	test.That(t, len(kps1), test.ShouldBeGreaterThan, 0)
	test.That(t, kps2, test.ShouldResemble, kps1)
	test.That(t, resp2, test.ShouldResemble, resp1)
}

func TestNewFASTKeypointsFromImage(t *testing.T) {
	cfg := testFASTConfig()
	rectImage := createTestImage()
	fastKps, err := NewFASTKeypointsFromImage(rectImage, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(fastKps.Points), test.ShouldEqual, 4)
	test.That(t, len(fastKps.Orientations), test.ShouldEqual, 4)
	test.That(t, fastKps.IsOriented(), test.ShouldBeTrue)
	// the top left corner sees the rectangle towards the bottom right
	test.That(t, fastKps.Orientations[0], test.ShouldAlmostEqual, math.Pi/4, 1e-6)
	test.That(t, fastKps.Orientations[3], test.ShouldAlmostEqual, -3*math.Pi/4, 1e-6)

	// test no orientation
	cfg.Oriented = false
	fastKpsNoOrientation, err := NewFASTKeypointsFromImage(rectImage, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(fastKpsNoOrientation.Points), test.ShouldEqual, 4)
	test.That(t, fastKpsNoOrientation.Orientations, test.ShouldBeNil)
	test.That(t, fastKpsNoOrientation.IsOriented(), test.ShouldBeFalse)
}

func TestKeypointsOrientation(t *testing.T) {
	// right half white: the intensity centroid lies along +x
	img := testutils.UniformGray(64, 64, 0)
	draw.Draw(img, image.Rect(32, 0, 64, 64), &image.Uniform{color.Gray{255}}, image.Point{}, draw.Src)
	okps, err := GetOrientedKeyPointsFromKeyPoints(img, []image.Point{{32, 32}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, okps.Orientations[0], test.ShouldAlmostEqual, 0)

	// bottom half white: along +y
	img = testutils.UniformGray(64, 64, 0)
	draw.Draw(img, image.Rect(0, 32, 64, 64), &image.Uniform{color.Gray{255}}, image.Point{}, draw.Src)
	okps, err = GetOrientedKeyPointsFromKeyPoints(img, []image.Point{{32, 32}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, okps.Orientations[0], test.ShouldAlmostEqual, math.Pi/2)

	// patches overlapping the border are padded with black
	okps, err = GetOrientedKeyPointsFromKeyPoints(testutils.UniformGray(64, 64, 200), []image.Point{{0, 32}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, okps.Orientations[0], test.ShouldAlmostEqual, 0)
}
