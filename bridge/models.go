package bridge

import "github.com/victorjacobs/go-nilan/nilan"

type sensorConfiguration struct {
	name       string
	class      string
	unit       string
	get        func(status *nilan.Status) interface{}
	stateTopic string
}
