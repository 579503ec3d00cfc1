package classifier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/admitcast/internal/domain/classifier"
	"github.com/okian/admitcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func separable() ([]model.Features, []float64) {
	samples := []model.Features{
		{0.95, 0.90, 0.80, 1.00},
		{1.00, 1.00, 0.90, 0.80},
		{0.90, 0.95, 1.00, 0.90},
		{0.97, 0.85, 0.85, 0.95},
		{0.20, 0.25, 0.10, 0.00},
		{0.30, 0.20, 0.05, 0.10},
		{0.25, 0.30, 0.00, 0.05},
		{0.15, 0.10, 0.10, 0.00},
	}
	labels := []float64{1, 1, 1, 1, 0, 0, 0, 0}
	return samples, labels
}

func TestTrain_Errors(t *testing.T) {
	Convey("Given invalid training input", t, func() {
		ctx := context.Background()

		Convey("When the training set is empty", func() {
			m, err := classifier.Train(ctx, nil, nil)

			Convey("Then ErrEmptyTrainingSet is returned", func() {
				So(m, ShouldBeNil)
				So(errors.Is(err, classifier.ErrEmptyTrainingSet), ShouldBeTrue)
			})
		})

		Convey("When samples and labels differ in length", func() {
			_, err := classifier.Train(ctx, []model.Features{{1, 1, 1, 1}}, nil)

			Convey("Then ErrShapeMismatch is returned", func() {
				So(errors.Is(err, classifier.ErrShapeMismatch), ShouldBeTrue)
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			samples, labels := separable()
			_, err := classifier.Train(cctx, samples, labels)

			Convey("Then the cancellation is reported", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestTrain_Deterministic(t *testing.T) {
	Convey("Given the same data trained twice with the same seed", t, func() {
		ctx := context.Background()
		samples, labels := separable()
		probe := model.Features{0.6, 0.5, 0.4, 0.5}

		a, err := classifier.Train(ctx, samples, labels, classifier.WithSeed(42))
		So(err, ShouldBeNil)
		defer a.Release()
		b, err := classifier.Train(ctx, samples, labels, classifier.WithSeed(42))
		So(err, ShouldBeNil)
		defer b.Release()

		pa, err := a.Predict(probe)
		So(err, ShouldBeNil)
		pb, err := b.Predict(probe)
		So(err, ShouldBeNil)

		Convey("Then predictions are identical", func() {
			So(pa, ShouldEqual, pb)
			So(a.Stats(), ShouldResemble, b.Stats())
		})

		Convey("And a different seed changes the model", func() {
			c, err := classifier.Train(ctx, samples, labels, classifier.WithSeed(7))
			So(err, ShouldBeNil)
			defer c.Release()
			pc, err := c.Predict(probe)
			So(err, ShouldBeNil)
			So(pc, ShouldNotEqual, pa)
		})
	})
}

func TestTrain_Defaults(t *testing.T) {
	Convey("Given 40 records and the default policy", t, func() {
		samples := make([]model.Features, 40)
		labels := make([]float64, 40)
		for i := range samples {
			v := float64(i) / 40
			samples[i] = model.Features{v, v, v, v}
			if i%2 == 0 {
				labels[i] = 1
			}
		}

		m, err := classifier.Train(context.Background(), samples, labels)
		So(err, ShouldBeNil)
		defer m.Release()

		Convey("Then 20 epochs of two batches each were run", func() {
			st := m.Stats()
			So(st.Samples, ShouldEqual, 40)
			So(st.Epochs, ShouldEqual, 20)
			So(st.Steps, ShouldEqual, 40)
			So(st.Loss, ShouldBeGreaterThan, 0)
		})

		Convey("And predictions are probabilities", func() {
			for _, x := range samples {
				p, err := m.Predict(x)
				So(err, ShouldBeNil)
				So(p, ShouldBeBetween, 0, 1)
			}
		})
	})
}

func TestTrain_Learns(t *testing.T) {
	Convey("Given linearly separable data", t, func() {
		ctx := context.Background()
		samples, labels := separable()

		short, err := classifier.Train(ctx, samples, labels, classifier.WithEpochs(1))
		So(err, ShouldBeNil)
		defer short.Release()

		long, err := classifier.Train(ctx, samples, labels,
			classifier.WithEpochs(2000),
			classifier.WithLearningRate(0.01),
		)
		So(err, ShouldBeNil)
		defer long.Release()

		Convey("Then longer training lowers the loss", func() {
			So(long.Stats().Loss, ShouldBeLessThan, short.Stats().Loss)
		})

		Convey("And the classes are separated", func() {
			pos, err := long.Predict(model.Features{0.95, 0.95, 0.9, 0.9})
			So(err, ShouldBeNil)
			neg, err := long.Predict(model.Features{0.2, 0.2, 0.05, 0.05})
			So(err, ShouldBeNil)
			So(pos, ShouldBeGreaterThan, 0.5)
			So(neg, ShouldBeLessThan, 0.5)
		})
	})
}

func TestRelease(t *testing.T) {
	Convey("Given a trained model", t, func() {
		samples, labels := separable()
		m, err := classifier.Train(context.Background(), samples, labels, classifier.WithHiddenUnits(4), classifier.WithBatchSize(3))
		So(err, ShouldBeNil)

		Convey("When it is released", func() {
			m.Release()
			m.Release()

			Convey("Then Predict fails with ErrReleased", func() {
				_, err := m.Predict(model.Features{1, 1, 1, 1})
				So(errors.Is(err, classifier.ErrReleased), ShouldBeTrue)
			})

			Convey("And pooled buffers do not leak into the next model", func() {
				a, err := classifier.Train(context.Background(), samples, labels, classifier.WithHiddenUnits(4), classifier.WithBatchSize(3))
				So(err, ShouldBeNil)
				defer a.Release()
				b, err := classifier.Train(context.Background(), samples, labels, classifier.WithHiddenUnits(4), classifier.WithBatchSize(3))
				So(err, ShouldBeNil)
				defer b.Release()

				pa, _ := a.Predict(samples[0])
				pb, _ := b.Predict(samples[0])
				So(pa, ShouldEqual, pb)
			})
		})
	})
}
