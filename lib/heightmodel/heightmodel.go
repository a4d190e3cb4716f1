package heightmodel

// height prediction boundary.
// models are XGBoost gradient boosted tree ensembles saved as JSON
// (Booster.save_model("model.json")); evaluation is done here, no
// XGBoost runtime is needed.

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

var ErrArity = errors.New("feature vector length mismatch")

type Predictor interface {
	// Predict returns height in cm for shape vector.
	Predict(vec []float64) (float64, error)
	// Arity is expected vector length.
	Arity() int
}

type arityError struct {
	got, want int
}

func (e *arityError) Error() string {
	return fmt.Sprintf("%v: got %d values, model wants %d", ErrArity, e.got, e.want)
}

func (e *arityError) Is(target error) bool { return target == ErrArity }

// CheckArity validates vector against predictor.
func CheckArity(p Predictor, vec []float64) error {
	if len(vec) != p.Arity() {
		return &arityError{got: len(vec), want: p.Arity()}
	}
	return nil
}

type node struct {
	left, right int32 // -1 for leaf
	feature     int32
	threshold   float64 // leaf value for leaves
	defaultLeft bool
}

type tree []node

func (t tree) eval(vec []float64) float64 {
	i := int32(0)
	for {
		n := &t[i]
		if n.left < 0 {
			return n.threshold
		}
		x := vec[n.feature]
		switch {
		case math.IsNaN(x):
			if n.defaultLeft {
				i = n.left
			} else {
				i = n.right
			}
		case x < n.threshold:
			i = n.left
		default:
			i = n.right
		}
	}
}

// Ensemble is sum-of-trees regressor.
type Ensemble struct {
	base  float64
	arity int
	trees []tree
}

var _ Predictor = (*Ensemble)(nil)

func (e *Ensemble) Arity() int { return e.arity }

func (e *Ensemble) NumTrees() int { return len(e.trees) }

func (e *Ensemble) Predict(vec []float64) (float64, error) {
	if err := CheckArity(e, vec); err != nil {
		return 0, err
	}
	// float32 accumulation like xgboost itself
	sum := float32(e.base)
	for _, t := range e.trees {
		sum += float32(t.eval(vec))
	}
	return float64(sum), nil
}

// JSON model layout, only parts we use.
type xgbModel struct {
	Learner struct {
		GradientBooster struct {
			Name  string `json:"name"`
			Model struct {
				Trees []xgbTree `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		LearnerModelParam struct {
			BaseScore  string `json:"base_score"`
			NumFeature string `json:"num_feature"`
			NumClass   string `json:"num_class"`
		} `json:"learner_model_param"`
	} `json:"learner"`
}

type xgbTree struct {
	LeftChildren    []int32   `json:"left_children"`
	RightChildren   []int32   `json:"right_children"`
	SplitIndices    []int32   `json:"split_indices"`
	SplitConditions []float64 `json:"split_conditions"`
	DefaultLeft     []flag    `json:"default_left"`
}

// flag is 0/1 in older models, bool in newer.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("bad boolean %s", b)
	}
	return nil
}

// parseScalar handles "0.5", "5E-1" and newer "[5E-1]" forms.
func parseScalar(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(s), "["), "]")
	return strconv.ParseFloat(s, 64)
}

func LoadXGBoost(path string) (*Ensemble, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	e, err := ParseXGBoost(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return e, nil
}

func ParseXGBoost(b []byte) (*Ensemble, error) {
	var m xgbModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	gb := &m.Learner.GradientBooster
	if gb.Name != "gbtree" {
		return nil, fmt.Errorf("unsupported booster %q", gb.Name)
	}
	lp := &m.Learner.LearnerModelParam
	if lp.NumClass != "" && lp.NumClass != "0" && lp.NumClass != "1" {
		return nil, fmt.Errorf("multi-class model (%s classes) isn't regressor", lp.NumClass)
	}

	e := &Ensemble{}
	var err error
	if e.base, err = parseScalar(lp.BaseScore); err != nil {
		return nil, fmt.Errorf("bad base_score: %w", err)
	}
	nf, err := strconv.Atoi(lp.NumFeature)
	if err != nil || nf <= 0 {
		return nil, fmt.Errorf("bad num_feature %q", lp.NumFeature)
	}
	e.arity = nf

	e.trees = make([]tree, len(gb.Model.Trees))
	for i := range gb.Model.Trees {
		if e.trees[i], err = buildTree(&gb.Model.Trees[i], nf); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return e, nil
}

func buildTree(x *xgbTree, nf int) (tree, error) {
	n := len(x.LeftChildren)
	if n == 0 {
		return nil, errors.New("empty tree")
	}
	if len(x.RightChildren) != n || len(x.SplitIndices) != n ||
		len(x.SplitConditions) != n || len(x.DefaultLeft) != n {

		return nil, errors.New("inconsistent node arrays")
	}
	t := make(tree, n)
	for i := range t {
		l, r := x.LeftChildren[i], x.RightChildren[i]
		t[i] = node{
			left:        l,
			right:       r,
			feature:     x.SplitIndices[i],
			threshold:   x.SplitConditions[i],
			defaultLeft: bool(x.DefaultLeft[i]),
		}
		if l < 0 {
			t[i].left = -1
			continue
		}
		// children always come after parent, so walks terminate
		if l <= int32(i) || r <= int32(i) || int(l) >= n || int(r) >= n {
			return nil, fmt.Errorf("node %d has bad children %d, %d", i, l, r)
		}
		if x.SplitIndices[i] < 0 || int(x.SplitIndices[i]) >= nf {
			return nil, fmt.Errorf("node %d splits on feature %d of %d", i, x.SplitIndices[i], nf)
		}
	}
	return t, nil
}
