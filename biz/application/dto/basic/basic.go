package basic

// Response 所有接口响应中的状态信息
type Response struct {
	Code int32  `json:"code"`
	Msg  string `json:"msg"`
}

func (x *Response) GetCode() int32 {
	if x != nil {
		return x.Code
	}
	return 0
}

func (x *Response) GetMsg() string {
	if x != nil {
		return x.Msg
	}
	return ""
}
