package table_test

import (
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/evalboard/internal/domain/table"
)

func TestParse(t *testing.T) {
	Convey("Given a CSV with mixed-case headers and a BOM", t, func() {
		src := "\ufeffID, Prediction ,Extra\n1,0.2,x\n2,0.9\n\n3,1,y,z\n"
		tb, err := table.Parse(strings.NewReader(src))

		Convey("Then headers should be folded", func() {
			So(err, ShouldBeNil)
			So(tb.Header, ShouldResemble, []string{"id", "prediction", "extra"})
		})

		Convey("And rows should be fitted to the header width", func() {
			So(tb.Rows, ShouldHaveLength, 3)
			So(tb.Rows[1], ShouldResemble, []string{"2", "0.9", ""})
			So(tb.Rows[2], ShouldResemble, []string{"3", "1", "y"})
		})

		Convey("And lookups should fold the requested name", func() {
			So(tb.Index("PREDICTION"), ShouldEqual, 1)
			So(tb.Has("missing"), ShouldBeFalse)
			So(tb.Get(0, tb.Index("extra")), ShouldEqual, "x")
			So(tb.Get(0, -1), ShouldEqual, "")
		})
	})

	Convey("Given empty input", t, func() {
		_, err := table.Parse(strings.NewReader(""))
		So(errors.Is(err, table.ErrEmpty), ShouldBeTrue)
	})

	Convey("Given a localized header", t, func() {
		tb, err := table.ParseBytes([]byte("id,PREDICCIÓN\n1,1\n"))
		So(err, ShouldBeNil)
		So(tb.Header[1], ShouldEqual, table.FoldName("predicción"))
	})
}

func TestMutation(t *testing.T) {
	Convey("Given a table with an alias column", t, func() {
		tb := table.New("id", "prediccion")
		tb.Append(map[string]string{"id": "1", "prediccion": "0.4", "ignored": "x"})

		Convey("When renaming the alias", func() {
			ok := tb.Rename("prediction", "predicción", "prediccion")

			Convey("Then the column should be renamed once", func() {
				So(ok, ShouldBeTrue)
				So(tb.Has("prediction"), ShouldBeTrue)
				So(tb.Rename("prediction", "prediccion"), ShouldBeFalse)
			})
		})

		Convey("When ensuring extra columns", func() {
			tb.Ensure("id", "mode")

			Convey("Then existing rows should be back-filled", func() {
				So(tb.Header, ShouldResemble, []string{"id", "prediccion", "mode"})
				So(tb.Rows[0], ShouldResemble, []string{"1", "0.4", ""})
			})
		})

		Convey("When encoding", func() {
			out, err := tb.Encode()

			Convey("Then the CSV should round trip", func() {
				So(err, ShouldBeNil)
				So(string(out), ShouldEqual, "id,prediccion\n1,0.4\n")
			})
		})
	})
}

func TestIsNull(t *testing.T) {
	Convey("Given null tokens", t, func() {
		for _, s := range []string{"", " ", "NA", "nan", "Null", "none", "N/A"} {
			So(table.IsNull(s), ShouldBeTrue)
		}
		So(table.IsNull("0"), ShouldBeFalse)
		So(table.IsNull("nancy"), ShouldBeFalse)
	})
}
