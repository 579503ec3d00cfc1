package model_test

import (
	"context"
	"testing"

	"github.com/okian/admitcast/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRequestIDContext(t *testing.T) {
	Convey("Given a context", t, func() {
		Convey("Without an id the lookup is empty", func() {
			So(model.RequestIDFromContext(context.Background()), ShouldBeEmpty)
		})

		Convey("With an id the lookup returns it", func() {
			ctx := model.WithRequestID(context.Background(), "client-abc")
			So(model.RequestIDFromContext(ctx), ShouldEqual, "client-abc")
		})
	})
}
