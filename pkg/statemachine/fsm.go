package statemachine

// NewFlatDefinition 创建扁平状态机声明：所有状态都挂在根节点下，
// 没有复合状态，退出链和进入链都只有一层
func NewFlatDefinition(name string, initial State, states ...State) (*Definition, error) {
	d := NewDefinition(name)
	for _, s := range states {
		if err := d.AddState(s, ""); err != nil {
			return nil, err
		}
	}
	d.SetRootInitial(initial)
	return d, nil
}
