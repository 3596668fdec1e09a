package flowbuilder_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestFlowBuilder(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}
